// Package prompts supplies step prompt templates. Built-in templates cover
// every pipeline step; a project can override any of them by dropping a
// <step-id>.md file into <projectDir>/prompts/.
package prompts

import (
	"os"
	"path/filepath"

	"github.com/stageflow/stageflow/internal/logging"
	"github.com/stageflow/stageflow/internal/step"
)

// builtin holds the default template for each step, indexed by step value.
var builtin = [step.Count]string{
	step.Brainstorming: `You are helping develop a product from this idea:

{{projectIdea}}

Brainstorm the product concept: target users, core value proposition,
key differentiators, and the three biggest risks. Be concrete.`,

	step.MarketResearch: `Project idea: {{projectIdea}}

Brainstorming output:
{{previousOutput.brainstorming}}

Research the market for this product: existing competitors, market size,
pricing landscape, and where this product fits. Cite the assumptions you
are making.`,

	step.UserPersonas: `Based on the research so far:

{{allPreviousOutputs}}

Define 3-4 user personas for {{projectIdea}}. For each: goals,
frustrations, and what would make them switch to this product.`,

	step.ProductRequirements: `Using everything below:

{{allPreviousOutputs}}

Write a product requirements document for {{projectIdea}}. Include user
stories with acceptance criteria and an explicit out-of-scope list.`,

	step.MVPScope: `Requirements:
{{previousOutput.product-requirements}}

Cut this down to an MVP: the smallest feature set that tests the core
value proposition. Justify every cut.`,

	step.Architecture: `MVP scope:
{{previousOutput.mvp-scope}}

Design the system architecture: components, their responsibilities, how
they communicate, and where state lives. Note the trade-offs you chose.`,

	step.TechStack: `Architecture:
{{previousOutput.architecture}}

Choose a technology stack for each component. Prefer boring, proven
technology; flag anything experimental and why it is worth the risk.`,

	step.DataModel: `Architecture and stack:
{{previousOutput.architecture}}

{{previousOutput.tech-stack}}

Design the data model: entities, relationships, and the access patterns
that shaped them.`,

	step.APIDesign: `Data model:
{{previousOutput.data-model}}

Design the public API surface: endpoints or operations, request and
response shapes, error semantics, and versioning approach.`,

	step.ImplementationPlan: `Using the full design:

{{allPreviousOutputs}}

Write an implementation plan for {{stepName}}: milestones in dependency
order, with a rough effort estimate and the riskiest item called out
per milestone.`,

	step.TestPlan: `Implementation plan:
{{previousOutput.implementation-plan}}

API design:
{{previousOutput.api-design}}

Write a test plan: what gets unit, integration, and end-to-end coverage,
and which failure modes matter most.`,

	step.LaunchPlan: `Everything so far:

{{allPreviousOutputs}}

Write a launch plan for {{projectIdea}}: rollout stages, success
metrics, and the rollback criteria for each stage.`,
}

// Source resolves templates with per-project file overrides.
type Source struct {
	dir    string
	logger *logging.Logger
}

// NewSource creates a Source. overrideDir may be empty to use built-in
// templates only; otherwise <overrideDir>/<step-id>.md takes precedence.
func NewSource(overrideDir string, logger *logging.Logger) *Source {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Source{dir: overrideDir, logger: logger}
}

// Template implements executor.PromptSource. Unreadable override files fall
// back to the built-in template rather than fail the step.
func (p *Source) Template(s step.Step) string {
	if p.dir != "" {
		path := filepath.Join(p.dir, s.ID()+".md")
		if data, err := os.ReadFile(path); err == nil {
			p.logger.Debug("using prompt override", "step", s.ID(), "path", path)
			return string(data)
		}
	}
	if !s.Valid() {
		return ""
	}
	return builtin[s]
}
