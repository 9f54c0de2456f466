// Package persistence provides the data storage abstraction layer for
// workflow states, the trigger ledger, and run artifacts.
package persistence

import (
	"context"

	"github.com/loomwork/loom/pkg/models"
)

// StateRepository persists versioned workflow states. Versions are
// append-only history; only the head pointer moves.
type StateRepository interface {
	// Latest returns the head state, or ErrStateNotFound on first run.
	Latest(ctx context.Context, workflowID string) (*models.WorkflowState, error)

	// Version returns a historical state version.
	Version(ctx context.Context, workflowID string, version int64) (*models.WorkflowState, error)

	// Commit writes state as a new immutable version and advances the head.
	// It fails with ErrVersionConflict when the stored head version does not
	// equal expectedVersion (optimistic concurrency guard).
	Commit(ctx context.Context, state *models.WorkflowState, expectedVersion int64) error
}

// TriggerLedger tracks the processing lifecycle of every observed trigger.
// All transitions are validated against the trigger state machine.
type TriggerLedger interface {
	// Observe records a freshly polled trigger. Returns the ledger record and
	// whether it was newly created; re-observing a known id is a no-op.
	Observe(ctx context.Context, trigger *models.Trigger) (*models.TriggerRecord, bool, error)

	// Get returns the ledger record, or ErrTriggerNotFound.
	Get(ctx context.Context, workflowID, triggerID string) (*models.TriggerRecord, error)

	// MarkProcessing moves a pending trigger to processing, recording the
	// state head version observed at the start of the run.
	MarkProcessing(ctx context.Context, workflowID, triggerID string, baseVersion int64) (*models.TriggerRecord, error)

	// MarkConsumed terminally consumes a processing trigger.
	MarkConsumed(ctx context.Context, workflowID, triggerID string) error

	// MarkFailed increments the attempt counter and moves the trigger to
	// failed_retryable, or straight to abandoned when attempts reach budget.
	MarkFailed(ctx context.Context, workflowID, triggerID, errDetail string, budget int) (*models.TriggerRecord, error)

	// Release returns a processing or failed_retryable trigger to pending.
	Release(ctx context.Context, workflowID, triggerID string) error

	// Pending lists non-terminal triggers ready or waiting to run, ordered by
	// creation time ascending.
	Pending(ctx context.Context, workflowID string) ([]*models.TriggerRecord, error)

	// Processing lists triggers left in processing, used for crash recovery.
	Processing(ctx context.Context, workflowID string) ([]*models.TriggerRecord, error)

	// Abandoned lists the operator-visible terminal failures.
	Abandoned(ctx context.Context, workflowID string) ([]*models.TriggerRecord, error)
}

// ArtifactRepository persists run output blobs.
type ArtifactRepository interface {
	Write(ctx context.Context, workflowID, runID string, artifact models.Artifact) error
	List(ctx context.Context, workflowID string) ([]string, error)
}

type Persistence interface {
	States() StateRepository
	Triggers() TriggerLedger
	Artifacts() ArtifactRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
