package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loomwork/loom/pkg/models"
)

const maxCatchUpSlots = 4

// ScheduleSource fires triggers from a cron expression. Trigger ids are
// derived from the scheduled slot time, so a slot fired twice (restart inside
// the same slot) deduplicates in the ledger instead of double-running.
type ScheduleSource struct {
	workflowID string
	expr       string
	schedule   cron.Schedule
	logger     *slog.Logger

	mu   sync.Mutex
	next time.Time
}

func NewScheduleSource(workflow *models.Workflow, logger *slog.Logger) (*ScheduleSource, error) {
	config := workflow.Trigger.Configuration

	expr, _ := config["cron"].(string)
	if expr == "" {
		return nil, errors.New("schedule trigger cron expression is required")
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	now := time.Now().UTC()

	return &ScheduleSource{
		workflowID: workflow.ID,
		expr:       expr,
		schedule:   schedule,
		next:       schedule.Next(now),
		logger: logger.With(
			"module", "schedule_source",
			"workflow_id", workflow.ID,
			"cron", expr,
		),
	}, nil
}

func (s *ScheduleSource) Validate() error {
	if s.schedule == nil {
		return errors.New("schedule trigger not initialized")
	}

	return nil
}

func (s *ScheduleSource) Poll(_ context.Context) ([]*models.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	triggers := make([]*models.Trigger, 0, 1)

	for !s.next.After(now) && len(triggers) < maxCatchUpSlots {
		slot := s.next

		triggers = append(triggers, &models.Trigger{
			ID:         fmt.Sprintf("sched-%d", slot.Unix()),
			WorkflowID: s.workflowID,
			Source:     "schedule",
			CreatedAt:  slot,
			Payload: map[string]any{
				"scheduled_for": slot.Format(time.RFC3339),
			},
		})

		s.next = s.schedule.Next(slot)
	}

	return triggers, nil
}

func (s *ScheduleSource) Ack(_ context.Context, _ *models.Trigger) error {
	return nil
}
