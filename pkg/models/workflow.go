// Package models defines the core domain models for stateful AI workflow automation.
package models

import "time"

// TriggerSource describes where a workflow's triggers come from.
type TriggerSource struct {
	Type          string         `json:"type"          validate:"required,oneof=blob queue schedule"`
	Configuration map[string]any `json:"configuration"`
}

// WorkflowStep is a single AI completion call in a workflow's ordered sequence.
// The prompt is a template rendered against the run context, so step N can
// reference the outputs of steps 1..N-1.
type WorkflowStep struct {
	ID             string `json:"id"              validate:"required"`
	Name           string `json:"name"            validate:"required,min=3"`
	Prompt         string `json:"prompt"          validate:"required"`
	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	RetryAttempts  int    `json:"retry_attempts,omitempty"`
}

// Workflow is a named, configured sequence of AI-call steps producing a state
// transition. Definitions are loaded from files at startup and are immutable
// while the daemon runs.
type Workflow struct {
	ID               string          `json:"id"          validate:"required"`
	Name             string          `json:"name"        validate:"required,min=3"`
	Description      string          `json:"description"`
	Trigger          TriggerSource   `json:"trigger"     validate:"required"`
	Steps            []*WorkflowStep `json:"steps"       validate:"required,min=1,dive"`
	ArtifactTemplate string          `json:"artifact_template,omitempty"`
	MaxAttempts      int             `json:"max_attempts,omitempty"`
	Variables        map[string]any  `json:"variables,omitempty"`
	CreatedAt        time.Time       `json:"created_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at,omitempty"`
}

const DefaultMaxAttempts = 5

// AttemptBudget returns the configured max trigger attempts, falling back to
// the default when unset.
func (w *Workflow) AttemptBudget() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}

	return DefaultMaxAttempts
}
