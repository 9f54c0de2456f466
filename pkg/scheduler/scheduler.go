// Package scheduler drives the daemon's periodic tick: poll trigger sources,
// record observations in the ledger, and run due triggers through the
// assemble, execute, commit pipeline. Triggers for one workflow run strictly
// serially; independent workflows interleave.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomwork/loom/pkg/assembler"
	"github.com/loomwork/loom/pkg/committer"
	"github.com/loomwork/loom/pkg/engine"
	"github.com/loomwork/loom/pkg/eventbus"
	"github.com/loomwork/loom/pkg/events"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
	"github.com/loomwork/loom/pkg/watcher"
)

const (
	DefaultTickInterval = 5 * time.Second
	defaultRetryBackoff = 30 * time.Second
	maxRetryBackoff     = 10 * time.Minute
)

// lane is the serial execution state for one workflow.
type lane struct {
	workflow *models.Workflow
	source   watcher.Source

	mu sync.Mutex
}

// Scheduler owns the tick loop. One instance per daemon; the per-workflow
// mutex makes the commit path single-writer per workflow id within this
// process.
type Scheduler struct {
	lanes       []*lane
	persistence persistence.Persistence
	assembler   *assembler.Assembler
	engine      *engine.Engine
	committer   *committer.Committer
	bus         eventbus.EventPublisher
	logger      *slog.Logger

	tickInterval time.Duration
	retryBackoff time.Duration

	wg sync.WaitGroup
}

type Config struct {
	TickInterval time.Duration
	RetryBackoff time.Duration
}

func NewScheduler(
	workflows []*models.Workflow,
	sources map[string]watcher.Source,
	store persistence.Persistence,
	asm *assembler.Assembler,
	eng *engine.Engine,
	com *committer.Committer,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
) (*Scheduler, error) {
	lanes := make([]*lane, 0, len(workflows))

	for _, workflow := range workflows {
		source, ok := sources[workflow.ID]
		if !ok {
			return nil, fmt.Errorf("no trigger source for workflow %s", workflow.ID)
		}

		lanes = append(lanes, &lane{workflow: workflow, source: source})
	}

	tickInterval := config.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	retryBackoff := config.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}

	return &Scheduler{
		lanes:        lanes,
		persistence:  store,
		assembler:    asm,
		engine:       eng,
		committer:    com,
		bus:          bus,
		logger:       logger.With("module", "scheduler"),
		tickInterval: tickInterval,
		retryBackoff: retryBackoff,
	}, nil
}

// Start recovers triggers left processing by a previous instance, then ticks
// until the context is canceled. In-flight work finishes before Start
// returns.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, lane := range s.lanes {
		err := s.committer.RecoverProcessing(ctx, lane.workflow, lane.source)
		if err != nil {
			return fmt.Errorf("recover workflow %s: %w", lane.workflow.ID, err)
		}
	}

	s.logger.InfoContext(ctx, "Scheduler started",
		"workflows", len(s.lanes),
		"tick_interval", s.tickInterval,
	)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("Scheduler stopped")

			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches one scheduling pass. A lane still busy from a previous
// tick is skipped rather than queued; its pending triggers are picked up by
// the next tick that finds it idle.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, ln := range s.lanes {
		if !ln.mu.TryLock() {
			continue
		}

		s.wg.Add(1)

		go func(ln *lane) {
			defer s.wg.Done()
			defer ln.mu.Unlock()

			s.tickLane(ctx, ln)
		}(ln)
	}
}

func (s *Scheduler) tickLane(ctx context.Context, lane *lane) {
	logger := s.logger.With("workflow_id", lane.workflow.ID)

	triggers, err := lane.source.Poll(ctx)
	if err != nil {
		// Transient source trouble must not kill the loop.
		logger.WarnContext(ctx, "Trigger source poll failed", "error", err)
	}

	for _, trigger := range triggers {
		_, created, err := s.persistence.Triggers().Observe(ctx, trigger)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record observed trigger", "trigger_id", trigger.ID, "error", err)

			continue
		}

		if created {
			logger.InfoContext(ctx, "Trigger observed", "trigger_id", trigger.ID, "source", trigger.Source)
		}
	}

	pending, err := s.persistence.Triggers().Pending(ctx, lane.workflow.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list pending triggers", "error", err)

		return
	}

	for _, record := range pending {
		if ctx.Err() != nil {
			return
		}

		if !s.due(record) {
			continue
		}

		s.processTrigger(ctx, lane, record, logger)
	}
}

// due gates retries: a failed trigger waits out an attempt-scaled backoff
// before running again.
func (s *Scheduler) due(record *models.TriggerRecord) bool {
	if record.Status != models.TriggerStatusFailedRetryable {
		return true
	}

	backoff := s.retryBackoff * time.Duration(1<<uint(record.Attempts-1))
	if backoff > maxRetryBackoff {
		backoff = maxRetryBackoff
	}

	return time.Since(record.UpdatedAt) >= backoff
}

func (s *Scheduler) processTrigger(ctx context.Context, lane *lane, record *models.TriggerRecord, logger *slog.Logger) {
	workflow := lane.workflow

	if record.Status == models.TriggerStatusFailedRetryable {
		err := s.persistence.Triggers().Release(ctx, workflow.ID, record.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to release trigger for retry", "trigger_id", record.ID, "error", err)

			return
		}
	}

	baseVersion, err := s.headVersion(ctx, workflow.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read state head", "trigger_id", record.ID, "error", err)

		return
	}

	processing, err := s.persistence.Triggers().MarkProcessing(ctx, workflow.ID, record.ID, baseVersion)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark trigger processing", "trigger_id", record.ID, "error", err)

		return
	}

	started := time.Now()

	runCtx, err := s.assembler.Assemble(ctx, workflow, &processing.Trigger)
	if err != nil {
		// Missing context is not a run failure: the trigger goes back to
		// pending without an attempt charged and waits for a later tick.
		logger.WarnContext(ctx, "Context assembly failed, trigger stays pending", "trigger_id", record.ID, "error", err)

		releaseErr := s.persistence.Triggers().Release(ctx, workflow.ID, record.ID)
		if releaseErr != nil {
			logger.ErrorContext(ctx, "Failed to release trigger after assembly failure", "trigger_id", record.ID, "error", releaseErr)
		}

		return
	}

	s.publish(ctx, workflow.ID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, workflow.ID),
		RunID:     runCtx.RunID,
		TriggerID: record.ID,
	})

	result := s.engine.Run(ctx, workflow, runCtx)
	if result.Canceled {
		// Shutdown interrupted the run. The trigger goes back to pending
		// uncharged and reruns after restart.
		logger.InfoContext(ctx, "Run canceled, trigger stays pending", "trigger_id", record.ID)

		releaseErr := s.persistence.Triggers().Release(context.WithoutCancel(ctx), workflow.ID, record.ID)
		if releaseErr != nil {
			logger.ErrorContext(ctx, "Failed to release trigger after canceled run", "trigger_id", record.ID, "error", releaseErr)
		}

		return
	}

	s.commit(ctx, lane, processing, result, runCtx.RunID, started)
}

func (s *Scheduler) commit(ctx context.Context, lane *lane, record *models.TriggerRecord, result *models.RunResult, runID string, started time.Time) {
	workflow := lane.workflow
	logger := s.logger.With("workflow_id", workflow.ID, "trigger_id", record.ID)

	outcome, err := s.committer.Commit(ctx, workflow, record, result, lane.source)
	if err != nil {
		logger.ErrorContext(ctx, "Commit failed", "error", err)

		return
	}

	switch outcome {
	case models.OutcomeCommitted, models.OutcomeAlreadyApplied:
		s.publish(ctx, workflow.ID, events.RunFinished{
			BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, workflow.ID),
			RunID:     runID,
			Version:   record.BaseVersion + 1,
			Duration:  time.Since(started),
		})
	case models.OutcomeFailedRetryable, models.OutcomeAbandoned:
		s.publish(ctx, workflow.ID, events.RunFailed{
			BaseEvent: events.NewBaseEvent(events.RunFailedEvent, workflow.ID),
			RunID:     runID,
			TriggerID: record.ID,
			Error:     result.ErrorDetail,
			Attempts:  record.Attempts + 1,
		})
	case models.OutcomeConflict:
		logger.InfoContext(ctx, "Run discarded after version conflict, trigger will rerun")
	}
}

func (s *Scheduler) headVersion(ctx context.Context, workflowID string) (int64, error) {
	head, err := s.persistence.States().Latest(ctx, workflowID)
	if err != nil {
		if persistence.IsStateNotFound(err) {
			return 0, nil
		}

		return 0, err
	}

	return head.Version, nil
}

func (s *Scheduler) publish(ctx context.Context, workflowID string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	err := s.bus.Publish(ctx, workflowID, event)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
