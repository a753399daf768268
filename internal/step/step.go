// Package step defines the fixed product-development pipeline: twelve
// ordered steps, each with a stable identifier, a display name, a category,
// and a declared set of upstream dependencies.
//
// Steps are modeled as an exhaustive enum rather than string identifiers so
// that adding or removing a step is a compile-time-checked edit everywhere
// the pipeline is consumed. Per-step state elsewhere in the codebase is held
// in fixed-size arrays indexed by Step, which guarantees existence and avoids
// map lookups on the hot path.
package step

import "fmt"

// Step identifies one unit of the fixed ordered pipeline.
type Step int

// The twelve pipeline steps, in execution order.
const (
	Brainstorming Step = iota
	MarketResearch
	UserPersonas
	ProductRequirements
	MVPScope
	Architecture
	TechStack
	DataModel
	APIDesign
	ImplementationPlan
	TestPlan
	LaunchPlan
)

// Count is the number of steps in the pipeline.
const Count = 12

// Category groups steps by the phase of product development they belong to.
type Category string

// Step categories.
const (
	CategoryIdeation   Category = "ideation"
	CategoryDefinition Category = "definition"
	CategoryDesign     Category = "design"
	CategoryDelivery   Category = "delivery"
)

// info holds the immutable identity of a step.
type info struct {
	id       string
	name     string
	category Category
	deps     []Step
}

// steps is the single source of truth for step identity. Indexed by Step.
var steps = [Count]info{
	Brainstorming:       {id: "brainstorming", name: "Brainstorming", category: CategoryIdeation},
	MarketResearch:      {id: "market-research", name: "Market Research", category: CategoryIdeation},
	UserPersonas:        {id: "user-personas", name: "User Personas", category: CategoryIdeation},
	ProductRequirements: {id: "product-requirements", name: "Product Requirements", category: CategoryDefinition, deps: []Step{Brainstorming, MarketResearch, UserPersonas}},
	MVPScope:            {id: "mvp-scope", name: "MVP Scope", category: CategoryDefinition, deps: []Step{ProductRequirements}},
	Architecture:        {id: "architecture", name: "Architecture", category: CategoryDesign, deps: []Step{ProductRequirements, MVPScope}},
	TechStack:           {id: "tech-stack", name: "Tech Stack", category: CategoryDesign, deps: []Step{Architecture}},
	DataModel:           {id: "data-model", name: "Data Model", category: CategoryDesign, deps: []Step{Architecture}},
	APIDesign:           {id: "api-design", name: "API Design", category: CategoryDesign, deps: []Step{Architecture, DataModel}},
	ImplementationPlan:  {id: "implementation-plan", name: "Implementation Plan", category: CategoryDelivery, deps: []Step{Architecture, TechStack, DataModel, APIDesign}},
	TestPlan:            {id: "test-plan", name: "Test Plan", category: CategoryDelivery, deps: []Step{ImplementationPlan}},
	LaunchPlan:          {id: "launch-plan", name: "Launch Plan", category: CategoryDelivery, deps: []Step{MVPScope, ImplementationPlan}},
}

// Valid reports whether s is one of the defined pipeline steps.
func (s Step) Valid() bool {
	return s >= 0 && s < Count
}

// ID returns the stable identifier used in checkpoint files and config.
func (s Step) ID() string {
	if !s.Valid() {
		return fmt.Sprintf("invalid-step-%d", int(s))
	}
	return steps[s].id
}

// DisplayName returns the human-readable step name.
func (s Step) DisplayName() string {
	if !s.Valid() {
		return s.ID()
	}
	return steps[s].name
}

// Ordinal returns the 1-based position of the step in the pipeline,
// as shown to users ("step 5 of 12").
func (s Step) Ordinal() int {
	return int(s) + 1
}

// Category returns the development phase this step belongs to.
func (s Step) Category() Category {
	if !s.Valid() {
		return ""
	}
	return steps[s].category
}

// Dependencies returns the steps whose outputs this step's prompt may
// reference. The returned slice must not be modified.
func (s Step) Dependencies() []Step {
	if !s.Valid() {
		return nil
	}
	return steps[s].deps
}

// String returns the step identifier. Implements fmt.Stringer.
func (s Step) String() string {
	return s.ID()
}

// First returns the first step of the pipeline.
func First() Step {
	return Brainstorming
}

// All returns every step in pipeline order.
func All() []Step {
	out := make([]Step, Count)
	for i := range out {
		out[i] = Step(i)
	}
	return out
}

// FromID resolves a stable identifier back to its Step.
// Returns an error for identifiers that are not part of the pipeline.
func FromID(id string) (Step, error) {
	for i := range steps {
		if steps[i].id == id {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step id %q", id)
}
