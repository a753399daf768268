package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/event"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/step"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), nil)
}

func testSnapshot() *Snapshot {
	m := machine.New(event.NewBus())
	_ = m.StartStep(step.Brainstorming)
	_ = m.CompleteStep(step.Brainstorming)
	_ = m.StartStep(step.MarketResearch)

	return Capture(m,
		ProjectInfo{Name: "demo", Idea: "a thing"},
		[]CompletedOutput{{StepID: "brainstorming", Output: "ideas"}},
		"", &SnapshotError{StepID: "market-research", Code: "RUNNER_EXIT", Message: "boom", RetryCount: 2},
		true)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	snap := testSnapshot()

	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := store.LoadLatestSnapshot()
	if err != nil {
		t.Fatalf("LoadLatestSnapshot: %v", err)
	}
	if loaded == nil {
		t.Fatal("loaded snapshot is nil")
	}

	if loaded.Version != SnapshotVersion {
		t.Errorf("Version = %d, want %d", loaded.Version, SnapshotVersion)
	}
	if loaded.Project.Name != "demo" || loaded.Project.Idea != "a thing" {
		t.Errorf("Project = %+v", loaded.Project)
	}
	if loaded.CurrentStep != "market-research" {
		t.Errorf("CurrentStep = %q, want market-research", loaded.CurrentStep)
	}
	if len(loaded.StepStatuses) != step.Count {
		t.Fatalf("StepStatuses has %d entries, want %d", len(loaded.StepStatuses), step.Count)
	}
	if loaded.StepStatuses[0].Status != "completed" {
		t.Errorf("first step status = %q, want completed", loaded.StepStatuses[0].Status)
	}
	if !loaded.Resumable {
		t.Error("Resumable flag lost in round trip")
	}
	if loaded.Error == nil || loaded.Error.RetryCount != 2 {
		t.Errorf("Error = %+v, want retryCount 2", loaded.Error)
	}
	if len(loaded.CompletedOutputs) != 1 || loaded.CompletedOutputs[0].Output != "ideas" {
		t.Errorf("CompletedOutputs = %+v", loaded.CompletedOutputs)
	}
}

func TestLoadSnapshotAbsent(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.LoadLatestSnapshot()
	if err != nil {
		t.Fatalf("absent snapshot should not error, got %v", err)
	}
	if snap != nil {
		t.Errorf("absent snapshot should be nil, got %+v", snap)
	}
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"version": 2,`},
		{"missing version", `{"projectInfo":{"name":"x","idea":"y"},"currentStep":"brainstorming"}`},
		{"missing project info", `{"version":2,"currentStep":"brainstorming"}`},
		{"missing current step", `{"version":2,"projectInfo":{"name":"x","idea":"y"}}`},
		{"newer version", `{"version":99,"projectInfo":{"name":"x","idea":"y"},"currentStep":"brainstorming"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir, nil)

			ckDir := filepath.Join(dir, "checkpoints")
			if err := os.MkdirAll(ckDir, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(ckDir, "workflow-state.json"), []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := store.LoadLatestSnapshot()
			if err == nil {
				t.Fatal("expected a SnapshotFormatError, got nil")
			}
			var formatErr *errors.SnapshotFormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("error type = %T, want *SnapshotFormatError", err)
			}
		})
	}
}

func TestClearSnapshotIdempotent(t *testing.T) {
	store := newTestStore(t)

	if err := store.ClearSnapshot(); err != nil {
		t.Fatalf("clearing an absent snapshot should not error, got %v", err)
	}

	if err := store.SaveSnapshot(testSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := store.ClearSnapshot(); err != nil {
		t.Fatalf("ClearSnapshot: %v", err)
	}

	snap, err := store.LoadLatestSnapshot()
	if err != nil || snap != nil {
		t.Errorf("snapshot still present after clear: %+v, %v", snap, err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	store := newTestStore(t)

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	executed := time.Now().Truncate(time.Second)
	rec := &Record{
		StepID:     "architecture",
		Status:     RecordCompleted,
		StartedAt:  &started,
		ExecutedAt: &executed,
		Duration:   time.Minute,
		Output:     "the design",
	}

	if err := store.SaveRecord(rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	loaded, err := store.LoadRecord(step.Architecture)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if loaded == nil {
		t.Fatal("loaded record is nil")
	}
	if loaded.Status != RecordCompleted || loaded.Output != "the design" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Duration != time.Minute {
		t.Errorf("Duration = %v, want 1m", loaded.Duration)
	}
}

func TestRecordOverwrite(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveRecord(&Record{StepID: "brainstorming", Status: RecordInProgress}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRecord(&Record{StepID: "brainstorming", Status: RecordCompleted, Output: "done"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadRecord(step.Brainstorming)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != RecordCompleted {
		t.Errorf("Status = %q, want completed (latest write wins)", loaded.Status)
	}
}

func TestLoadRecordAbsent(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.LoadRecord(step.LaunchPlan)
	if err != nil {
		t.Fatalf("absent record should not error, got %v", err)
	}
	if rec != nil {
		t.Errorf("absent record should be nil, got %+v", rec)
	}
}

func TestLoadRecordLegacySchema(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus string
		wantDur    time.Duration
	}{
		{
			name:       "legacy success true",
			body:       `{"stepId":"brainstorming","executedAt":"2024-06-01T10:00:00Z","duration":45000,"success":true,"output":"ideas"}`,
			wantStatus: RecordCompleted,
			wantDur:    45 * time.Second,
		},
		{
			name:       "legacy success false",
			body:       `{"stepId":"brainstorming","executedAt":"2024-06-01T10:00:00Z","duration":5000,"success":false}`,
			wantStatus: RecordFailed,
			wantDur:    5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir, nil)

			ckDir := filepath.Join(dir, "checkpoints")
			if err := os.MkdirAll(ckDir, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(ckDir, "brainstorming.json"), []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}

			rec, err := store.LoadRecord(step.Brainstorming)
			if err != nil {
				t.Fatalf("LoadRecord: %v", err)
			}
			if rec.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", rec.Status, tt.wantStatus)
			}
			if rec.Duration != tt.wantDur {
				t.Errorf("Duration = %v, want %v", rec.Duration, tt.wantDur)
			}
			if rec.ExecutedAt == nil {
				t.Error("ExecutedAt lost in normalization")
			}
		})
	}
}

func TestLoadRecordMissingStatusAndSuccess(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	ckDir := filepath.Join(dir, "checkpoints")
	if err := os.MkdirAll(ckDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ckDir, "brainstorming.json"), []byte(`{"stepId":"brainstorming"}`), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.LoadRecord(step.Brainstorming)
	var formatErr *errors.SnapshotFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("error = %v, want *SnapshotFormatError", err)
	}
}

func TestClearAll(t *testing.T) {
	store := newTestStore(t)

	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll on an absent directory should not error, got %v", err)
	}

	if err := store.SaveSnapshot(testSnapshot()); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRecord(&Record{StepID: "brainstorming", Status: RecordCompleted}); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("checkpoint directory not empty after ClearAll: %d entries", len(entries))
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := store.SaveRecord(&Record{StepID: "brainstorming", Status: RecordInProgress}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Name() != "brainstorming.json" {
			t.Errorf("unexpected file in checkpoint dir: %s", entry.Name())
		}
	}
}
