// Package events defines event types and structures for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomwork/loom/pkg/models"
)

type EventType string

const Topic = "loom.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent  EventType = "run.started"
	RunFinishedEvent EventType = "run.finished"
	RunFailedEvent   EventType = "run.failed"

	StateCommittedEvent   EventType = "state.committed"
	TriggerConsumedEvent  EventType = "trigger.consumed"
	TriggerAbandonedEvent EventType = "trigger.abandoned"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         "evt-" + uuid.New().String()[:8],
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type RunStarted struct {
	BaseEvent

	RunID     string `json:"run_id"`
	TriggerID string `json:"trigger_id"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Version  int64         `json:"version"`
	Duration time.Duration `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	RunID     string `json:"run_id"`
	TriggerID string `json:"trigger_id"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type StateCommitted struct {
	BaseEvent

	Version   int64 `json:"version"`
	Artifacts int   `json:"artifacts"`
}

func (e StateCommitted) GetType() EventType {
	return StateCommittedEvent
}

type TriggerConsumed struct {
	BaseEvent

	TriggerID string               `json:"trigger_id"`
	Outcome   models.CommitOutcome `json:"outcome"`
}

func (e TriggerConsumed) GetType() EventType {
	return TriggerConsumedEvent
}

// TriggerAbandoned is the sole user-visible terminal failure. It is published
// for operator attention, never silently dropped.
type TriggerAbandoned struct {
	BaseEvent

	TriggerID string `json:"trigger_id"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

func (e TriggerAbandoned) GetType() EventType {
	return TriggerAbandonedEvent
}
