// Package watcher polls trigger sources for signals that a workflow run
// should occur. Sources are read-only; consumption happens through Ack after
// a successful commit.
package watcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/providers/blob"
)

// Source produces triggers for a single workflow.
type Source interface {
	// Poll returns the currently visible triggers ordered by creation time
	// ascending. The same trigger id may appear across polls; the ledger
	// deduplicates downstream.
	Poll(ctx context.Context) ([]*models.Trigger, error)

	// Ack removes a consumed trigger from the source, for sources where the
	// signal outlives the poll (a blob file is archived; a schedule slot and
	// a popped queue entry need nothing). Ack must be idempotent.
	Ack(ctx context.Context, trigger *models.Trigger) error

	Validate() error
}

// NewSource builds the configured trigger source for a workflow.
func NewSource(workflow *models.Workflow, blobs blob.Store, logger *slog.Logger) (Source, error) {
	switch workflow.Trigger.Type {
	case "blob":
		return NewBlobSource(workflow, blobs, logger)
	case "queue":
		return NewQueueSource(workflow, logger)
	case "schedule":
		return NewScheduleSource(workflow, logger)
	default:
		return nil, fmt.Errorf("unsupported trigger source type: %s", workflow.Trigger.Type)
	}
}
