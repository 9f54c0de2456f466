package models

import "time"

// TriggerStatus is the ledger state of a trigger.
type TriggerStatus string

const (
	TriggerStatusPending         TriggerStatus = "pending"
	TriggerStatusProcessing      TriggerStatus = "processing"
	TriggerStatusConsumed        TriggerStatus = "consumed"
	TriggerStatusFailedRetryable TriggerStatus = "failed_retryable"
	TriggerStatusAbandoned       TriggerStatus = "abandoned"
)

// triggerTransitions is the allowed state machine:
// Pending -> Processing -> {Consumed | FailedRetryable | Abandoned}.
// FailedRetryable returns to Pending after backoff. Consumed and Abandoned
// are terminal.
var triggerTransitions = map[TriggerStatus][]TriggerStatus{
	TriggerStatusPending:         {TriggerStatusProcessing},
	TriggerStatusProcessing:      {TriggerStatusConsumed, TriggerStatusFailedRetryable, TriggerStatusAbandoned, TriggerStatusPending},
	TriggerStatusFailedRetryable: {TriggerStatusPending, TriggerStatusAbandoned},
	TriggerStatusConsumed:        {},
	TriggerStatusAbandoned:       {},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s TriggerStatus) CanTransition(next TriggerStatus) bool {
	for _, allowed := range triggerTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Terminal reports whether the status admits no further transitions.
func (s TriggerStatus) Terminal() bool {
	return len(triggerTransitions[s]) == 0
}

// Trigger is an external signal indicating a workflow run should occur.
// Immutable once observed; the same id may be observed across multiple polls
// and is deduplicated through the ledger.
type Trigger struct {
	ID         string         `json:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Source     string         `json:"source"`
	CreatedAt  time.Time      `json:"created_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// TriggerRecord is the durable ledger entry tracking a trigger's processing
// lifecycle. BaseVersion is the workflow state head version observed when the
// trigger entered Processing; the committer uses it to detect an interrupted
// commit on restart.
type TriggerRecord struct {
	Trigger

	Status      TriggerStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	BaseVersion int64         `json:"base_version"`
	LastError   string        `json:"last_error,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
