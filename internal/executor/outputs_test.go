package executor

import (
	"testing"

	"github.com/stageflow/stageflow/internal/step"
)

func TestOutputsSetGetClear(t *testing.T) {
	o := NewOutputs()

	if _, ok := o.Get(step.Brainstorming); ok {
		t.Error("empty set should report no output")
	}

	o.Set(step.Brainstorming, "v1")
	o.Set(step.Brainstorming, "v2")
	if got, ok := o.Get(step.Brainstorming); !ok || got != "v2" {
		t.Errorf("Get = %q/%v, want v2 (latest set wins)", got, ok)
	}
	if o.Len() != 1 {
		t.Errorf("Len = %d, want 1", o.Len())
	}

	// An explicitly empty output still counts as recorded.
	o.Set(step.MarketResearch, "")
	if _, ok := o.Get(step.MarketResearch); !ok {
		t.Error("empty-string output should be recorded")
	}

	o.Clear(step.Brainstorming)
	if _, ok := o.Get(step.Brainstorming); ok {
		t.Error("Clear should remove the output")
	}
}

func TestOutputsCompletedInPipelineOrder(t *testing.T) {
	o := NewOutputs()
	o.Set(step.Architecture, "C")
	o.Set(step.Brainstorming, "A")
	o.Set(step.MVPScope, "B")

	completed := o.Completed()
	want := []string{"brainstorming", "mvp-scope", "architecture"}
	if len(completed) != len(want) {
		t.Fatalf("Completed() has %d entries, want %d", len(completed), len(want))
	}
	for i, w := range want {
		if completed[i].StepID != w {
			t.Errorf("entry %d = %q, want %q", i, completed[i].StepID, w)
		}
	}
}

func TestConcatenatedEmpty(t *testing.T) {
	if got := NewOutputs().Concatenated(); got != "" {
		t.Errorf("Concatenated() on empty set = %q, want empty", got)
	}
}
