package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerStatus_CanTransition(t *testing.T) {
	assert.True(t, TriggerStatusPending.CanTransition(TriggerStatusProcessing))
	assert.True(t, TriggerStatusProcessing.CanTransition(TriggerStatusConsumed))
	assert.True(t, TriggerStatusProcessing.CanTransition(TriggerStatusFailedRetryable))
	assert.True(t, TriggerStatusProcessing.CanTransition(TriggerStatusAbandoned))
	assert.True(t, TriggerStatusFailedRetryable.CanTransition(TriggerStatusPending))
	assert.True(t, TriggerStatusFailedRetryable.CanTransition(TriggerStatusAbandoned))

	assert.False(t, TriggerStatusPending.CanTransition(TriggerStatusConsumed))
	assert.False(t, TriggerStatusConsumed.CanTransition(TriggerStatusPending))
	assert.False(t, TriggerStatusAbandoned.CanTransition(TriggerStatusPending))
	assert.False(t, TriggerStatusAbandoned.CanTransition(TriggerStatusProcessing))
}

func TestTriggerStatus_Terminal(t *testing.T) {
	assert.True(t, TriggerStatusConsumed.Terminal())
	assert.True(t, TriggerStatusAbandoned.Terminal())
	assert.False(t, TriggerStatusPending.Terminal())
	assert.False(t, TriggerStatusProcessing.Terminal())
	assert.False(t, TriggerStatusFailedRetryable.Terminal())
}

func TestEmptyState(t *testing.T) {
	state := EmptyState("news-digest")

	assert.Equal(t, "news-digest", state.WorkflowID)
	assert.Equal(t, int64(0), state.Version)
	assert.NotNil(t, state.Data)
}

func TestWorkflowState_Next(t *testing.T) {
	state := &WorkflowState{WorkflowID: "news-digest", Version: 3}

	next := state.Next(map[string]any{"summary": "latest"})

	assert.Equal(t, "news-digest", next.WorkflowID)
	assert.Equal(t, int64(4), next.Version)
	assert.Equal(t, "latest", next.Data["summary"])
	assert.False(t, next.UpdatedAt.IsZero())
}

func TestWorkflow_AttemptBudget(t *testing.T) {
	workflow := &Workflow{ID: "w1"}
	assert.Equal(t, DefaultMaxAttempts, workflow.AttemptBudget())

	workflow.MaxAttempts = 2
	assert.Equal(t, 2, workflow.AttemptBudget())
}
