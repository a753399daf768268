// Package internal contains integration tests that verify the engine
// packages work together: state machine, checkpoint store, executor, retry,
// pipeline runner, resume coordinator, and history journal composed the way
// the CLI composes them.
package internal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/errors"
	"github.com/stageflow/stageflow/internal/event"
	"github.com/stageflow/stageflow/internal/executor"
	"github.com/stageflow/stageflow/internal/history"
	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/prompts"
	"github.com/stageflow/stageflow/internal/resume"
	"github.com/stageflow/stageflow/internal/retry"
	"github.com/stageflow/stageflow/internal/runner"
	"github.com/stageflow/stageflow/internal/step"
)

var project = checkpoint.ProjectInfo{Name: "demo", Idea: "a habit tracker"}

// flakyRunner fails a chosen step a fixed number of times with a transient
// error, then succeeds everywhere.
type flakyRunner struct {
	failStep  step.Step
	failTimes int
	failures  int
	calls     int
}

func (r *flakyRunner) Run(_ context.Context, s step.Step, _ string) (*executor.RunResult, error) {
	r.calls++
	if s == r.failStep && r.failures < r.failTimes {
		r.failures++
		return nil, errors.New("connection reset by peer")
	}
	return &executor.RunResult{Content: "output of " + s.ID()}, nil
}

// engine bundles one wired engine instance over a shared project directory.
type engine struct {
	machine *machine.Machine
	store   *checkpoint.Store
	runner  *runner.Runner
	coord   *resume.Coordinator
	bus     *event.Bus
}

func newEngine(t *testing.T, dir string, r executor.Runner, retryCfg *retry.Config) *engine {
	t.Helper()

	bus := event.NewBus()
	m := machine.New(bus)
	store := checkpoint.NewStore(dir, nil)
	exec := executor.New(m, store, r, prompts.NewSource("", nil), nil)
	if retryCfg != nil {
		exec = exec.WithRetry(*retryCfg)
	}

	return &engine{
		machine: m,
		store:   store,
		runner:  runner.New(m, exec, store, project, runner.Options{}),
		coord:   resume.New(store, nil),
		bus:     bus,
	}
}

// TestFullPipelineRun drives all twelve steps through the real executor and
// checkpoint store.
func TestFullPipelineRun(t *testing.T) {
	dir := t.TempDir()
	eng := newEngine(t, dir, &flakyRunner{}, nil)

	wctx := &executor.Context{ProjectIdea: project.Idea, Outputs: executor.NewOutputs()}
	if err := eng.runner.Run(context.Background(), wctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !eng.machine.IsComplete() {
		t.Fatal("workflow did not complete")
	}
	if wctx.Outputs.Len() != step.Count {
		t.Errorf("collected %d outputs, want %d", wctx.Outputs.Len(), step.Count)
	}

	// Every step has a terminal completed checkpoint on disk.
	for _, s := range step.All() {
		rec, err := eng.store.LoadRecord(s)
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil || rec.Status != checkpoint.RecordCompleted {
			t.Errorf("step %s record = %+v, want completed", s.ID(), rec)
		}
	}
}

// TestHaltAndResume fails mid-pipeline, then resumes with a second engine
// instance the way a fresh process invocation would.
func TestHaltAndResume(t *testing.T) {
	dir := t.TempDir()

	// First run: architecture fails more times than the retry budget allows.
	failing := &flakyRunner{failStep: step.Architecture, failTimes: 100}
	retryCfg := &retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond, Strategy: retry.StrategyFixed}
	first := newEngine(t, dir, failing, retryCfg)

	wctx := &executor.Context{ProjectIdea: project.Idea, Outputs: executor.NewOutputs()}
	err := first.runner.Run(context.Background(), wctx)
	if err == nil {
		t.Fatal("expected the first run to halt")
	}
	if !strings.Contains(err.Error(), "architecture") {
		t.Errorf("halt error should name the failing step: %v", err)
	}

	// Second process: detect, inspect, resume, finish.
	healthy := &flakyRunner{}
	second := newEngine(t, dir, healthy, nil)

	if !second.coord.DetectResumable() {
		t.Fatal("no resumable snapshot after the halt")
	}

	info, err := second.coord.ResumeInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.CurrentStepID != "architecture" {
		t.Errorf("resume info step = %q, want architecture", info.CurrentStepID)
	}
	if info.CompletedCount != 5 {
		t.Errorf("resume info completed = %d, want 5", info.CompletedCount)
	}
	if info.RetryCount != 1 {
		t.Errorf("resume info retry count = %d, want 1", info.RetryCount)
	}

	res, err := second.coord.Resume(second.machine)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.ResumeStep != step.Architecture {
		t.Errorf("ResumeStep = %v, want architecture", res.ResumeStep)
	}

	wctx2 := &executor.Context{ProjectIdea: res.Project.Idea, Outputs: res.Outputs}
	if err := second.runner.Run(context.Background(), wctx2); err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	if !second.machine.IsComplete() {
		t.Fatal("resumed run did not complete the workflow")
	}
	// Only the steps after the halt executed in the second run.
	if healthy.calls != step.Count-5 {
		t.Errorf("second run executed %d steps, want %d", healthy.calls, step.Count-5)
	}

	// Recovery data is gone after the successful resume and run.
	snap, err := second.store.LoadLatestSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil {
		t.Error("snapshot still present after a completed resume")
	}
}

// TestTransientFailureRecoversInPlace verifies that a step that fails once
// with a transient error recovers within the same run via the retry engine,
// leaving no snapshot behind.
func TestTransientFailureRecoversInPlace(t *testing.T) {
	dir := t.TempDir()

	flaky := &flakyRunner{failStep: step.DataModel, failTimes: 2}
	retryCfg := &retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, Strategy: retry.StrategyFixed}
	eng := newEngine(t, dir, flaky, retryCfg)

	wctx := &executor.Context{ProjectIdea: project.Idea, Outputs: executor.NewOutputs()}
	if err := eng.runner.Run(context.Background(), wctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !eng.machine.IsComplete() {
		t.Fatal("workflow did not complete despite retry budget")
	}
	if flaky.failures != 2 {
		t.Errorf("step failed %d times, want 2", flaky.failures)
	}

	snap, err := eng.store.LoadLatestSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil {
		t.Error("in-run recovery should leave no snapshot")
	}
}

// TestHistoryJournalObservesRun attaches the journal to the engine bus and
// checks the run leaves an audit trail.
func TestHistoryJournalObservesRun(t *testing.T) {
	dir := t.TempDir()
	eng := newEngine(t, dir, &flakyRunner{}, nil)

	journal, err := history.Open(dir, nil)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer journal.Close()
	journal.Attach(eng.bus)

	wctx := &executor.Context{ProjectIdea: project.Idea, Outputs: executor.NewOutputs()}
	if err := eng.runner.Run(context.Background(), wctx); err != nil {
		t.Fatal(err)
	}

	entries, err := journal.RecentEvents(100)
	if err != nil {
		t.Fatal(err)
	}

	// 12 starts + 12 completions + workflow start and finish.
	if len(entries) != 2*step.Count+2 {
		t.Errorf("journal has %d entries, want %d", len(entries), 2*step.Count+2)
	}
	if entries[0].EventType != event.TypeWorkflowCompleted {
		t.Errorf("newest entry = %q, want workflow.completed", entries[0].EventType)
	}
}

// TestModeMixEndToEnd runs a pipeline with skip modes applied, mirroring a
// modes.yaml preset.
func TestModeMixEndToEnd(t *testing.T) {
	dir := t.TempDir()
	r := &flakyRunner{}
	eng := newEngine(t, dir, r, nil)

	eng.machine.SetMode(step.MarketResearch, machine.ModeSkip)
	eng.machine.SetMode(step.LaunchPlan, machine.ModeSkip)

	wctx := &executor.Context{ProjectIdea: project.Idea, Outputs: executor.NewOutputs()}
	if err := eng.runner.Run(context.Background(), wctx); err != nil {
		t.Fatal(err)
	}

	if r.calls != step.Count-2 {
		t.Errorf("runner executed %d steps, want %d", r.calls, step.Count-2)
	}
	if got := eng.machine.StatusOf(step.MarketResearch); got != machine.StatusSkipped {
		t.Errorf("market-research status = %v, want skipped", got)
	}
	if !eng.machine.IsComplete() {
		t.Error("workflow should complete with skipped steps")
	}
}
