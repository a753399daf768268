package executor

import (
	"strings"

	"github.com/stageflow/stageflow/internal/checkpoint"
	"github.com/stageflow/stageflow/internal/step"
)

// Outputs holds completed step outputs in a fixed-size array indexed by
// step ordinal. Not safe for concurrent use; the engine is single-threaded
// cooperative and only one step runs at a time.
type Outputs struct {
	values [step.Count]*string
}

// NewOutputs creates an empty output set.
func NewOutputs() *Outputs {
	return &Outputs{}
}

// Set records the output of s, replacing any previous value.
func (o *Outputs) Set(s step.Step, output string) {
	o.values[s] = &output
}

// Get returns the output of s and whether one has been recorded.
func (o *Outputs) Get(s step.Step) (string, bool) {
	if o.values[s] == nil {
		return "", false
	}
	return *o.values[s], true
}

// Clear removes the output of s.
func (o *Outputs) Clear(s step.Step) {
	o.values[s] = nil
}

// Len returns the number of recorded outputs.
func (o *Outputs) Len() int {
	n := 0
	for i := range o.values {
		if o.values[i] != nil {
			n++
		}
	}
	return n
}

// Concatenated joins all recorded outputs in pipeline order, each preceded
// by a header naming its step. Used for {{allPreviousOutputs}}.
func (o *Outputs) Concatenated() string {
	var b strings.Builder
	for i := range o.values {
		if o.values[i] == nil {
			continue
		}
		s := step.Step(i)
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(s.DisplayName())
		b.WriteString("\n\n")
		b.WriteString(*o.values[i])
	}
	return b.String()
}

// Completed returns the outputs as snapshot records, in pipeline order.
func (o *Outputs) Completed() []checkpoint.CompletedOutput {
	out := make([]checkpoint.CompletedOutput, 0, o.Len())
	for i := range o.values {
		if o.values[i] == nil {
			continue
		}
		out = append(out, checkpoint.CompletedOutput{
			StepID: step.Step(i).ID(),
			Output: *o.values[i],
		})
	}
	return out
}
