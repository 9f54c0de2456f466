// Package assembler builds the ephemeral run context for a single workflow
// run: the latest committed state plus fresh external data referenced by the
// trigger payload. The assembled context is never persisted.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
	"github.com/loomwork/loom/pkg/providers/mail"
)

// ErrContextUnavailable indicates external data the run depends on could not
// be fetched. The run must not proceed on partial context.
var ErrContextUnavailable = errors.New("run context unavailable")

const (
	fetchAttempts    = 3
	fetchBaseBackoff = 500 * time.Millisecond
)

// Assembler builds run contexts. It reads state and mail but never writes;
// all writes happen at commit time.
type Assembler struct {
	states persistence.StateRepository
	mail   mail.Client
	logger *slog.Logger
}

func NewAssembler(states persistence.StateRepository, mailClient mail.Client, logger *slog.Logger) *Assembler {
	return &Assembler{
		states: states,
		mail:   mailClient,
		logger: logger.With("module", "assembler"),
	}
}

// Assemble loads the latest state for the workflow (an empty version zero
// state on first run) and resolves any documents the trigger payload points
// at. Fetch failures are retried a few times, then reported as
// ErrContextUnavailable so the trigger can be retried later.
func (a *Assembler) Assemble(ctx context.Context, workflow *models.Workflow, trigger *models.Trigger) (*models.RunContext, error) {
	state, err := a.states.Latest(ctx, workflow.ID)
	if err != nil {
		if persistence.IsStateNotFound(err) {
			state = models.EmptyState(workflow.ID)
		} else {
			return nil, fmt.Errorf("load state for %s: %w", workflow.ID, err)
		}
	}

	documents, err := a.resolveDocuments(ctx, trigger)
	if err != nil {
		return nil, err
	}

	runContext := &models.RunContext{
		RunID:       "run-" + uuid.New().String()[:8],
		WorkflowID:  workflow.ID,
		State:       state,
		TriggerData: trigger.Payload,
		Documents:   documents,
		Variables:   workflow.Variables,
		StepOutputs: make(map[string]string),
	}

	a.logger.DebugContext(ctx, "Run context assembled",
		"workflow_id", workflow.ID,
		"trigger_id", trigger.ID,
		"run_id", runContext.RunID,
		"state_version", state.Version,
		"documents", len(documents),
	)

	return runContext, nil
}

// resolveDocuments fetches the mail messages referenced by the trigger
// payload via message_id or message_ids.
func (a *Assembler) resolveDocuments(ctx context.Context, trigger *models.Trigger) ([]models.Document, error) {
	ids := messageIDs(trigger.Payload)
	if len(ids) == 0 {
		return nil, nil
	}

	if a.mail == nil {
		return nil, fmt.Errorf("%w: trigger %s references messages but no mail client is configured",
			ErrContextUnavailable, trigger.ID)
	}

	documents := make([]models.Document, 0, len(ids))

	for _, id := range ids {
		message, err := a.fetchMessage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch message %s: %w", ErrContextUnavailable, id, err)
		}

		documents = append(documents, models.Document{
			ID:      message.ID,
			Subject: message.Subject,
			Body:    message.Body,
		})
	}

	return documents, nil
}

func (a *Assembler) fetchMessage(ctx context.Context, id string) (*mail.Message, error) {
	backoff := retry.WithMaxRetries(fetchAttempts-1, retry.NewExponential(fetchBaseBackoff))

	var message *mail.Message

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := a.mail.FetchMessage(ctx, id)
		if err != nil {
			if mail.IsMessageNotFound(err) {
				// Retrying will not make a missing message appear.
				return err
			}

			return retry.RetryableError(err)
		}

		message = fetched

		return nil
	})
	if err != nil {
		return nil, err
	}

	return message, nil
}

func messageIDs(payload map[string]any) []string {
	if payload == nil {
		return nil
	}

	if id, ok := payload["message_id"].(string); ok && id != "" {
		return []string{id}
	}

	raw, ok := payload["message_ids"].([]any)
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(raw))

	for _, entry := range raw {
		if id, ok := entry.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}
