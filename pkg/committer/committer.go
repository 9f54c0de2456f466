// Package committer applies run results atomically: advance the workflow
// state under the optimistic version guard, write artifacts, consume the
// trigger, and acknowledge the source. This is the only component that moves
// the state head.
package committer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomwork/loom/pkg/eventbus"
	"github.com/loomwork/loom/pkg/events"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
)

// Acker removes a consumed trigger from its source. Satisfied by
// watcher.Source.
type Acker interface {
	Ack(ctx context.Context, trigger *models.Trigger) error
}

type Committer struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

func NewCommitter(store persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Committer {
	return &Committer{
		persistence: store,
		bus:         bus,
		logger:      logger.With("module", "committer"),
	}
}

// Commit decides the fate of a finished run. The record must be in
// processing status with BaseVersion set to the head version observed when
// the run started.
//
// Ordering on success: version blob, head swap, artifacts, ledger consume,
// source ack. Each step is idempotent or detectable, so a crash at any point
// re-runs cleanly: an interrupted commit is recognized on the next attempt by
// the head version having already passed BaseVersion.
func (c *Committer) Commit(ctx context.Context, workflow *models.Workflow, record *models.TriggerRecord, result *models.RunResult, source Acker) (models.CommitOutcome, error) {
	logger := c.logger.With("workflow_id", workflow.ID, "trigger_id", record.ID)

	if !result.Success {
		return c.commitFailure(ctx, workflow, record, result.ErrorDetail, logger)
	}

	head, err := c.headVersion(ctx, workflow.ID)
	if err != nil {
		return "", err
	}

	if head > record.BaseVersion {
		// A prior commit for this trigger advanced the state before the
		// ledger update landed. Finish the bookkeeping without re-applying.
		logger.WarnContext(ctx, "State already advanced past trigger base version, completing interrupted commit",
			"head_version", head,
			"base_version", record.BaseVersion,
		)

		return c.finish(ctx, workflow, record, models.OutcomeAlreadyApplied, head, 0, source, logger)
	}

	next := &models.WorkflowState{
		WorkflowID: workflow.ID,
		Version:    record.BaseVersion + 1,
		Data:       result.NewStateData,
		UpdatedAt:  time.Now().UTC(),
	}

	err = c.persistence.States().Commit(ctx, next, record.BaseVersion)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			logger.WarnContext(ctx, "Commit rejected by version guard, releasing trigger for a fresh run",
				"base_version", record.BaseVersion,
			)

			releaseErr := c.persistence.Triggers().Release(ctx, workflow.ID, record.ID)
			if releaseErr != nil {
				return "", fmt.Errorf("release trigger after conflict: %w", releaseErr)
			}

			return models.OutcomeConflict, nil
		}

		return "", fmt.Errorf("commit state: %w", err)
	}

	for _, artifact := range result.Artifacts {
		err = c.persistence.Artifacts().Write(ctx, workflow.ID, record.ID, artifact)
		if err != nil {
			return "", fmt.Errorf("write artifact %s: %w", artifact.Name, err)
		}
	}

	return c.finish(ctx, workflow, record, models.OutcomeCommitted, record.BaseVersion+1, len(result.Artifacts), source, logger)
}

// RecoverProcessing resolves triggers left in processing by a crash. A record
// whose base version the head has passed had its commit interrupted after the
// head swap and is completed; anything else is released for a clean re-run.
func (c *Committer) RecoverProcessing(ctx context.Context, workflow *models.Workflow, source Acker) error {
	records, err := c.persistence.Triggers().Processing(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("list processing triggers: %w", err)
	}

	for _, record := range records {
		head, err := c.headVersion(ctx, workflow.ID)
		if err != nil {
			return err
		}

		if head > record.BaseVersion {
			_, err = c.finish(ctx, workflow, record, models.OutcomeAlreadyApplied, head, 0, source,
				c.logger.With("workflow_id", workflow.ID, "trigger_id", record.ID))
			if err != nil {
				return err
			}

			continue
		}

		err = c.persistence.Triggers().Release(ctx, workflow.ID, record.ID)
		if err != nil {
			return fmt.Errorf("release stale processing trigger %s: %w", record.ID, err)
		}

		c.logger.InfoContext(ctx, "Released trigger left processing by previous instance",
			"workflow_id", workflow.ID,
			"trigger_id", record.ID,
		)
	}

	return nil
}

func (c *Committer) commitFailure(ctx context.Context, workflow *models.Workflow, record *models.TriggerRecord, detail string, logger *slog.Logger) (models.CommitOutcome, error) {
	failed, err := c.persistence.Triggers().MarkFailed(ctx, workflow.ID, record.ID, detail, workflow.AttemptBudget())
	if err != nil {
		return "", fmt.Errorf("mark trigger failed: %w", err)
	}

	if failed.Status == models.TriggerStatusAbandoned {
		logger.ErrorContext(ctx, "Trigger abandoned after exhausting attempt budget",
			"attempts", failed.Attempts,
			"last_error", detail,
		)

		c.publish(ctx, workflow.ID, events.TriggerAbandoned{
			BaseEvent: events.NewBaseEvent(events.TriggerAbandonedEvent, workflow.ID),
			TriggerID: record.ID,
			Attempts:  failed.Attempts,
			LastError: detail,
		})

		return models.OutcomeAbandoned, nil
	}

	logger.WarnContext(ctx, "Run failed, trigger will be retried",
		"attempts", failed.Attempts,
		"budget", workflow.AttemptBudget(),
		"error", detail,
	)

	return models.OutcomeFailedRetryable, nil
}

func (c *Committer) finish(ctx context.Context, workflow *models.Workflow, record *models.TriggerRecord, outcome models.CommitOutcome, version int64, artifacts int, source Acker, logger *slog.Logger) (models.CommitOutcome, error) {
	err := c.persistence.Triggers().MarkConsumed(ctx, workflow.ID, record.ID)
	if err != nil {
		return "", fmt.Errorf("mark trigger consumed: %w", err)
	}

	if source != nil {
		err = source.Ack(ctx, &record.Trigger)
		if err != nil {
			// The trigger is consumed in the ledger, so a re-observed source
			// entry deduplicates; the stale entry is only noise.
			logger.WarnContext(ctx, "Failed to acknowledge consumed trigger at source", "error", err)
		}
	}

	if outcome == models.OutcomeCommitted {
		c.publish(ctx, workflow.ID, events.StateCommitted{
			BaseEvent: events.NewBaseEvent(events.StateCommittedEvent, workflow.ID),
			Version:   version,
			Artifacts: artifacts,
		})
	}

	c.publish(ctx, workflow.ID, events.TriggerConsumed{
		BaseEvent: events.NewBaseEvent(events.TriggerConsumedEvent, workflow.ID),
		TriggerID: record.ID,
		Outcome:   outcome,
	})

	logger.InfoContext(ctx, "Trigger consumed", "outcome", outcome, "version", version)

	return outcome, nil
}

func (c *Committer) headVersion(ctx context.Context, workflowID string) (int64, error) {
	head, err := c.persistence.States().Latest(ctx, workflowID)
	if err != nil {
		if persistence.IsStateNotFound(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("load state head: %w", err)
	}

	return head.Version, nil
}

func (c *Committer) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if c.bus == nil {
		return
	}

	err := c.bus.Publish(ctx, workflowID, event)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
