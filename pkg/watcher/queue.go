package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/loomwork/loom/pkg/models"
)

const queuePopBatch = 32

// QueueSource pops trigger envelopes from a Redis list. A popped entry is
// immediately recorded in the ledger by the scheduler, which is what makes
// it durable; Ack therefore has nothing left to do.
type QueueSource struct {
	workflowID string
	queue      string
	client     redis.UniversalClient
	logger     *slog.Logger
}

func NewQueueSource(workflow *models.Workflow, logger *slog.Logger) (*QueueSource, error) {
	config := workflow.Trigger.Configuration

	queue, _ := config["queue"].(string)

	connection, _ := config["connection"].(map[string]any)

	addr, _ := connection["addr"].(string)
	if addr == "" {
		addr = "localhost:6379"
	}

	password, _ := connection["password"].(string)

	db := 0
	if dbStr, ok := connection["db"].(string); ok && dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid db value: %w", err)
		}

		db = parsed
	}

	source := &QueueSource{
		workflowID: workflow.ID,
		queue:      queue,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		logger: logger.With(
			"module", "queue_source",
			"workflow_id", workflow.ID,
			"queue", queue,
		),
	}

	err := source.Validate()
	if err != nil {
		return nil, err
	}

	return source, nil
}

func (s *QueueSource) Validate() error {
	if s.queue == "" {
		return errors.New("queue trigger queue name is required")
	}

	return nil
}

func (s *QueueSource) Poll(ctx context.Context) ([]*models.Trigger, error) {
	entries, err := s.client.LPopCount(ctx, s.queue, queuePopBatch).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("pop from queue %s: %w", s.queue, err)
	}

	triggers := make([]*models.Trigger, 0, len(entries))

	for _, entry := range entries {
		var env envelope

		err := json.Unmarshal([]byte(entry), &env)
		if err != nil {
			s.logger.WarnContext(ctx, "Discarding unparseable queue entry", "error", err)

			continue
		}

		id := env.ID
		if id == "" {
			id = "trg-" + uuid.New().String()[:8]
		}

		createdAt := env.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		triggers = append(triggers, &models.Trigger{
			ID:         id,
			WorkflowID: s.workflowID,
			Source:     "queue",
			CreatedAt:  createdAt,
			Payload:    env.Payload,
		})
	}

	return triggers, nil
}

func (s *QueueSource) Ack(_ context.Context, _ *models.Trigger) error {
	return nil
}

func (s *QueueSource) Close() error {
	return s.client.Close()
}
