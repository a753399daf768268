package history

import (
	"testing"
	"time"

	"github.com/stageflow/stageflow/internal/event"
	"github.com/stageflow/stageflow/internal/step"
)

func TestJournalRecordsBusEvents(t *testing.T) {
	dir := t.TempDir()

	journal, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer journal.Close()

	if journal.RunID() == "" {
		t.Error("RunID should be set")
	}

	bus := event.NewBus()
	journal.Attach(bus)

	bus.Publish(event.NewStepStartedEvent(step.Brainstorming))
	bus.Publish(event.NewStepCompletedEvent(step.Brainstorming, 2*time.Second))
	bus.Publish(event.NewRetryAttemptEvent("market-research", 1))

	entries, err := journal.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].EventType != event.TypeRetryAttempt {
		t.Errorf("newest entry type = %q, want retry.attempt", entries[0].EventType)
	}
	if entries[2].EventType != event.TypeStepStarted || entries[2].StepID != "brainstorming" {
		t.Errorf("oldest entry = %+v", entries[2])
	}
	for _, e := range entries {
		if e.RunID != journal.RunID() {
			t.Errorf("entry run id = %q, want %q", e.RunID, journal.RunID())
		}
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()
	first.Attach(bus)
	bus.Publish(event.NewStepStartedEvent(step.Brainstorming))
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if second.RunID() == first.RunID() {
		t.Error("each open should register a distinct run")
	}

	entries, err := second.RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries across runs, want 1", len(entries))
	}
}

func TestOpenReadOnlyRegistersNoRun(t *testing.T) {
	dir := t.TempDir()

	writer, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()
	writer.Attach(bus)
	bus.Publish(event.NewStepSkippedEvent(step.MarketResearch))
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	reader, err := OpenReadOnly(dir, nil)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer reader.Close()

	if reader.RunID() != "" {
		t.Error("read-only journal should not register a run")
	}

	entries, err := reader.RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].EventType != event.TypeStepSkipped {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRecentEventsLimit(t *testing.T) {
	dir := t.TempDir()

	journal, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	bus := event.NewBus()
	journal.Attach(bus)
	for _, s := range step.All() {
		bus.Publish(event.NewStepStartedEvent(s))
	}

	entries, err := journal.RecentEvents(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Errorf("got %d entries, want 5", len(entries))
	}
	if entries[0].StepID != step.LaunchPlan.ID() {
		t.Errorf("newest entry step = %q, want launch-plan", entries[0].StepID)
	}
}
