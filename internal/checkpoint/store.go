package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/step"
)

// snapshotFile is the whole-workflow snapshot filename.
const snapshotFile = "workflow-state.json"

// Store reads and writes checkpoint artifacts under a project directory.
// Writes are atomic (temp file plus rename) and last-writer-wins; there is
// no cross-process locking, so concurrent runs against the same project
// directory must be serialized by the caller.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *logging.Logger
}

// NewStore creates a Store rooted at <projectDir>/checkpoints.
// The directory is created lazily on first write.
func NewStore(projectDir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		dir:    filepath.Join(projectDir, "checkpoints"),
		logger: logger,
	}
}

// Dir returns the checkpoints directory.
func (s *Store) Dir() string {
	return s.dir
}

// Capture builds an immutable snapshot of the machine's current state.
// It performs no I/O; pair it with SaveSnapshot to persist.
func Capture(m *machine.Machine, project ProjectInfo, outputs []CompletedOutput, partial string, execErr *SnapshotError, resumable bool) *Snapshot {
	states := m.States()
	statuses := make([]StepStatusRecord, len(states))
	for i, st := range states {
		statuses[i] = StepStatusRecord{
			StepID:      st.Step.ID(),
			Status:      string(st.Status),
			Mode:        string(st.Mode),
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
			Error:       st.Error,
		}
	}

	return &Snapshot{
		Version:          SnapshotVersion,
		SavedAt:          time.Now(),
		Project:          project,
		CurrentStep:      m.CurrentStep().ID(),
		StepStatuses:     statuses,
		CompletedOutputs: outputs,
		PartialOutput:    partial,
		Error:            execErr,
		Resumable:        resumable,
	}
}

// SaveSnapshot persists the snapshot to workflow-state.json, creating the
// checkpoints directory as needed. Write failures surface as a
// PersistenceError carrying the underlying cause.
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, snapshotFile)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.NewPersistenceError("save", path, err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewPersistenceError("save", path, err)
	}
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return errors.NewPersistenceError("save", path, err)
	}

	s.logger.Debug("snapshot saved", "path", path, "current_step", snap.CurrentStep, "resumable", snap.Resumable)
	return nil
}

// LoadLatestSnapshot reads workflow-state.json. A missing snapshot is not
// an error: the result is (nil, nil). A snapshot that exists but cannot be
// parsed, or is missing any of the required fields (version, projectInfo,
// currentStep), yields a SnapshotFormatError.
func (s *Store) LoadLatestSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, snapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError("load", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewSnapshotFormatError(path, nil, err)
	}

	var missing []string
	if snap.Version == 0 {
		missing = append(missing, "version")
	}
	if snap.Project.Name == "" && snap.Project.Idea == "" {
		missing = append(missing, "projectInfo")
	}
	if snap.CurrentStep == "" {
		missing = append(missing, "currentStep")
	}
	if len(missing) > 0 {
		return nil, errors.NewSnapshotFormatError(path, missing, nil)
	}
	if snap.Version > SnapshotVersion {
		return nil, errors.NewSnapshotFormatError(path, nil,
			fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion))
	}

	return &snap, nil
}

// ClearSnapshot removes the workflow snapshot. Clearing an absent snapshot
// is not an error; the call is idempotent.
func (s *Store) ClearSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, snapshotFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewPersistenceError("clear", path, err)
	}
	return nil
}

// SaveRecord persists a per-step checkpoint to <step-id>.json. The file is
// overwritten, never appended: it holds only the latest state for the step.
func (s *Store) SaveRecord(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, rec.StepID+".json")
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.NewPersistenceError("save", path, err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewPersistenceError("save", path, err)
	}
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return errors.NewPersistenceError("save", path, err)
	}

	s.logger.Debug("step checkpoint saved", "path", path, "status", rec.Status)
	return nil
}

// LoadRecord reads the per-step checkpoint for st, normalizing legacy-schema
// records into the canonical form. A missing record is (nil, nil).
func (s *Store) LoadRecord(st step.Step) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, st.ID()+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistenceError("load", path, err)
	}

	var wire recordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.NewSnapshotFormatError(path, nil, err)
	}

	rec, ok := wire.normalize()
	if !ok {
		return nil, errors.NewSnapshotFormatError(path, []string{"status"}, nil)
	}
	return rec, nil
}

// ClearAll removes every checkpoint artifact: the workflow snapshot and all
// per-step records. Removing an empty or absent directory is not an error.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewPersistenceError("clear", s.dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return errors.NewPersistenceError("clear", path, err)
		}
	}
	return nil
}

// atomicWriteFile writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
