// Package checkpoint persists workflow progress to disk so an interrupted
// run can resume exactly where it left off.
//
// Two kinds of artifacts live under <project>/checkpoints/:
//
//   - one whole-workflow snapshot, workflow-state.json, written when a run
//     halts on an error or is paused; and
//   - one record per step, <step-id>.json, overwritten (never appended) on
//     every step lifecycle change so the file always holds the latest state.
//
// Per-step records are read through a versioned deserializer: the current
// schema carries an explicit status field, while the legacy schema only has
// a success boolean. The reader detects the absence of status and
// synthesizes one from success, so older on-disk records remain loadable
// without a migration step. The legacy shape never propagates past the read
// boundary.
package checkpoint

import (
	"time"
)

// SnapshotVersion is the schema version written into new snapshots.
// Readers accept any version from 1 through SnapshotVersion.
const SnapshotVersion = 2

// ProjectInfo identifies the project a snapshot belongs to.
type ProjectInfo struct {
	Name string `json:"name"`
	Idea string `json:"idea"`
}

// StepStatusRecord is one step's status inside a snapshot.
type StepStatusRecord struct {
	StepID      string     `json:"stepId"`
	Status      string     `json:"status"`
	Mode        string     `json:"mode,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CompletedOutput pairs a completed step with its output, preserving
// pipeline order in the snapshot's completedOutputs array.
type CompletedOutput struct {
	StepID string `json:"stepId"`
	Output string `json:"output"`
}

// SnapshotError carries the structured failure that halted a run.
type SnapshotError struct {
	StepID     string `json:"stepId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryCount int    `json:"retryCount"`
}

// Snapshot is a point-in-time serialization of whole-workflow progress.
// Snapshots are immutable values: capture builds one, save persists it,
// and a successful resume destroys it.
type Snapshot struct {
	Version          int                `json:"version"`
	SavedAt          time.Time          `json:"savedAt"`
	Project          ProjectInfo        `json:"projectInfo"`
	CurrentStep      string             `json:"currentStep"`
	StepStatuses     []StepStatusRecord `json:"stepStatuses"`
	CompletedOutputs []CompletedOutput  `json:"completedOutputs"`
	PartialOutput    string             `json:"partialOutput,omitempty"`
	Error            *SnapshotError     `json:"error,omitempty"`
	Resumable        bool               `json:"resumable"`
}

// Record statuses for per-step checkpoint files.
const (
	RecordInProgress = "in-progress"
	RecordCompleted  = "completed"
	RecordFailed     = "failed"
)

// RecordError is the structured error stored in a failed step's checkpoint.
type RecordError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryCount int    `json:"retryCount"`
}

// Record is the canonical in-memory form of a per-step checkpoint.
// Every on-disk shape, current or legacy, is normalized into this type
// at the read boundary.
type Record struct {
	StepID     string        `json:"stepId"`
	Status     string        `json:"status"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	ExecutedAt *time.Time    `json:"executedAt,omitempty"`
	Duration   time.Duration `json:"durationMs,omitempty"`
	Output     string        `json:"output,omitempty"`
	Error      *RecordError  `json:"error,omitempty"`
}

// recordWire is the superset of the current and legacy per-step schemas.
// The legacy subset is {stepId, executedAt, duration, success, output}.
type recordWire struct {
	StepID     string        `json:"stepId"`
	Status     string        `json:"status,omitempty"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	ExecutedAt *time.Time    `json:"executedAt,omitempty"`
	Duration   time.Duration `json:"durationMs,omitempty"`
	LegacyDur  *int64        `json:"duration,omitempty"`
	Success    *bool         `json:"success,omitempty"`
	Output     string        `json:"output,omitempty"`
	Error      *RecordError  `json:"error,omitempty"`
}

// normalize converts a wire record into the canonical Record. It reports
// whether a usable status could be determined: a record with neither an
// explicit status nor a legacy success flag is malformed.
func (w *recordWire) normalize() (*Record, bool) {
	rec := &Record{
		StepID:     w.StepID,
		Status:     w.Status,
		StartedAt:  w.StartedAt,
		ExecutedAt: w.ExecutedAt,
		Duration:   w.Duration,
		Output:     w.Output,
		Error:      w.Error,
	}
	if w.LegacyDur != nil && rec.Duration == 0 {
		rec.Duration = time.Duration(*w.LegacyDur) * time.Millisecond
	}
	if rec.Status == "" {
		if w.Success == nil {
			return nil, false
		}
		if *w.Success {
			rec.Status = RecordCompleted
		} else {
			rec.Status = RecordFailed
		}
	}
	return rec, true
}
