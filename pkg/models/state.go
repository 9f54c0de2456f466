package models

import "time"

// WorkflowState is the durable versioned data representing a workflow's
// accumulated memory. One live state per workflow id; the version increments
// by exactly one on every successful commit and prior versions are retained
// as history, never mutated.
type WorkflowState struct {
	WorkflowID string         `json:"workflow_id"`
	Version    int64          `json:"version"`
	Data       map[string]any `json:"data"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EmptyState is the first-run sentinel at version 0. Committing on top of it
// produces version 1.
func EmptyState(workflowID string) *WorkflowState {
	return &WorkflowState{
		WorkflowID: workflowID,
		Version:    0,
		Data:       make(map[string]any),
	}
}

// Next derives the successor state carrying the given data.
func (s *WorkflowState) Next(data map[string]any) *WorkflowState {
	return &WorkflowState{
		WorkflowID: s.WorkflowID,
		Version:    s.Version + 1,
		Data:       data,
		UpdatedAt:  time.Now().UTC(),
	}
}
