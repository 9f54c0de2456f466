// Package engine executes a workflow's ordered AI step sequence against an
// assembled run context and produces the run result for the committer. The
// engine itself never writes state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/otelhelper"
	"github.com/loomwork/loom/pkg/providers/ai"
	"github.com/loomwork/loom/pkg/template"
)

const (
	defaultStepTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	retryBaseBackoff     = time.Second
)

// Engine runs workflows step by step. One goroutine per run; steps never
// overlap within a run.
type Engine struct {
	provider ai.Provider
	logger   *slog.Logger
	tracer   trace.Tracer
	backoff  time.Duration
}

func NewEngine(provider ai.Provider, logger *slog.Logger) *Engine {
	return &Engine{
		provider: provider,
		logger:   logger.With("module", "engine"),
		tracer:   otel.Tracer("loom.engine"),
		backoff:  retryBaseBackoff,
	}
}

// Run executes the workflow's steps in order. Each step's prompt is rendered
// against the run context, so later steps see earlier outputs. A failed step
// aborts the sequence and yields an unsuccessful result; the caller decides
// whether the trigger is retried. Run never returns an error for step
// failures, only results.
func (e *Engine) Run(ctx context.Context, workflow *models.Workflow, runCtx *models.RunContext) *models.RunResult {
	logger := e.logger.With("workflow_id", workflow.ID, "run_id", runCtx.RunID)
	logger.InfoContext(ctx, "Run started", "steps", len(workflow.Steps))

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.RunIDKey, runCtx.RunID),
	)
	defer span.End()

	started := time.Now()

	for position, step := range workflow.Steps {
		// Honor cancellation between steps; a dispatched call finishes on
		// its own timeout.
		if ctx.Err() != nil {
			logger.InfoContext(ctx, "Run canceled before step", "step_id", step.ID)

			return canceled()
		}

		output, err := e.runStep(ctx, step, runCtx)
		if err != nil {
			if ctx.Err() != nil {
				// The run context was torn down mid step. Not a step
				// failure; the trigger is retried from scratch later.
				logger.InfoContext(ctx, "Run canceled during step", "step_id", step.ID)

				return canceled()
			}

			logger.ErrorContext(ctx, "Step failed",
				"step_id", step.ID,
				"position", position,
				"error", err,
			)
			otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))

			return failure(fmt.Sprintf("step %s: %v", step.ID, err))
		}

		runCtx.StepOutputs[step.ID] = output

		logger.DebugContext(ctx, "Step completed", "step_id", step.ID, "position", position)
	}

	result := &models.RunResult{
		NewStateData: nextStateData(workflow, runCtx),
		Success:      true,
	}

	if workflow.ArtifactTemplate != "" {
		artifact, err := e.renderArtifact(workflow, runCtx)
		if err != nil {
			return failure(fmt.Sprintf("render artifact: %v", err))
		}

		result.Artifacts = []models.Artifact{*artifact}
	}

	logger.InfoContext(ctx, "Run finished", "duration", time.Since(started))

	return result
}

// runStep renders the prompt and calls the provider, retrying transient
// failures with exponential backoff up to the step's attempt budget.
func (e *Engine) runStep(ctx context.Context, step *models.WorkflowStep, runCtx *models.RunContext) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.RunIDKey, runCtx.RunID),
	)
	defer span.End()

	prompt, err := template.RenderWithContext(step.Prompt, runCtx)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	request := ai.Request{
		Prompt:    prompt,
		Model:     step.Model,
		MaxTokens: step.MaxTokens,
	}

	attempts := step.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(e.backoff))

	var output string

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout(step))
		defer cancel()

		completion, err := e.provider.Complete(stepCtx, request)
		if err != nil {
			if ai.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
				return retry.RetryableError(err)
			}

			return err
		}

		output = completion

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	return output, nil
}

func (e *Engine) renderArtifact(workflow *models.Workflow, runCtx *models.RunContext) (*models.Artifact, error) {
	name, err := template.RenderWithContext(workflow.ArtifactTemplate, runCtx)
	if err != nil {
		return nil, fmt.Errorf("artifact name template: %w", err)
	}

	final := workflow.Steps[len(workflow.Steps)-1]

	return &models.Artifact{
		Name: name,
		Data: []byte(runCtx.StepOutputs[final.ID]),
	}, nil
}

// nextStateData folds the run's outputs into the prior state data. Existing
// keys the run does not touch carry forward unchanged.
func nextStateData(workflow *models.Workflow, runCtx *models.RunContext) map[string]any {
	data := make(map[string]any, len(runCtx.State.Data)+4)

	for key, value := range runCtx.State.Data {
		data[key] = value
	}

	outputs := make(map[string]any, len(runCtx.StepOutputs))
	for id, output := range runCtx.StepOutputs {
		outputs[id] = output
	}

	final := workflow.Steps[len(workflow.Steps)-1]

	data["outputs"] = outputs
	data["last_output"] = runCtx.StepOutputs[final.ID]
	data["last_run_id"] = runCtx.RunID
	data["runs"] = runCount(runCtx.State.Data) + 1

	return data
}

func runCount(data map[string]any) int64 {
	switch count := data["runs"].(type) {
	case int64:
		return count
	case int:
		return int64(count)
	case float64:
		// JSON round-trips numbers as float64.
		return int64(count)
	default:
		return 0
	}
}

func stepTimeout(step *models.WorkflowStep) time.Duration {
	if step.TimeoutSeconds > 0 {
		return time.Duration(step.TimeoutSeconds) * time.Second
	}

	return defaultStepTimeout
}

func failure(detail string) *models.RunResult {
	return &models.RunResult{
		Success:     false,
		ErrorDetail: detail,
	}
}

func canceled() *models.RunResult {
	return &models.RunResult{Canceled: true}
}
