package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/mocks"
	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/providers/ai"
)

func testEngine(provider ai.Provider) *Engine {
	e := NewEngine(provider, slog.Default())
	e.backoff = time.Millisecond

	return e
}

func digestWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "news-digest",
		Name: "News Digest",
		Steps: []*models.WorkflowStep{
			{
				ID:     "summarize",
				Name:   "Summarize headlines",
				Prompt: "Summarize: {{.trigger_data.content}}",
			},
			{
				ID:     "format",
				Name:   "Format digest",
				Prompt: "Format as markdown: {{index .step_outputs \"summarize\"}}",
			},
		},
	}
}

func digestContext() *models.RunContext {
	return &models.RunContext{
		RunID:       "run-1",
		WorkflowID:  "news-digest",
		State:       models.EmptyState("news-digest"),
		TriggerData: map[string]any{"content": "headlines here"},
		StepOutputs: make(map[string]string),
	}
}

func TestRun_StepsExecuteInOrderWithChainedOutputs(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req ai.Request) bool {
		return req.Prompt == "Summarize: headlines here"
	})).Return("the summary", nil).Once()
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req ai.Request) bool {
		return req.Prompt == "Format as markdown: the summary"
	})).Return("# digest", nil).Once()

	result := testEngine(provider).Run(t.Context(), digestWorkflow(), digestContext())

	require.True(t, result.Success)
	assert.Equal(t, "# digest", result.NewStateData["last_output"])
	assert.Equal(t, "run-1", result.NewStateData["last_run_id"])
	assert.Equal(t, int64(1), result.NewStateData["runs"])

	outputs, ok := result.NewStateData["outputs"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "the summary", outputs["summarize"])
	provider.AssertExpectations(t)
}

func TestRun_CarriesForwardUntouchedStateKeys(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.Anything).Return("out", nil)

	runCtx := digestContext()
	runCtx.State = runCtx.State.Next(map[string]any{"digest": "day one", "runs": int64(3)})

	result := testEngine(provider).Run(t.Context(), digestWorkflow(), runCtx)

	require.True(t, result.Success)
	assert.Equal(t, "day one", result.NewStateData["digest"])
	assert.Equal(t, int64(4), result.NewStateData["runs"])
}

func TestRun_TransientFailureRetriesThenSucceeds(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.Anything).
		Return("", ai.NewTransient(errors.New("rate limited"))).Twice()
	provider.On("Complete", mock.Anything, mock.Anything).Return("recovered", nil)

	result := testEngine(provider).Run(t.Context(), digestWorkflow(), digestContext())

	require.True(t, result.Success)
	assert.Equal(t, "recovered", result.NewStateData["last_output"])
}

func TestRun_PermanentFailureDoesNotRetry(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.Anything).
		Return("", ai.NewPermanent(errors.New("invalid api key")))

	result := testEngine(provider).Run(t.Context(), digestWorkflow(), digestContext())

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorDetail, "summarize")
	provider.AssertNumberOfCalls(t, "Complete", 1)
}

func TestRun_ExhaustedRetriesFailTheRun(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.Anything).
		Return("", ai.NewTransient(errors.New("still overloaded")))

	workflow := digestWorkflow()
	workflow.Steps[0].RetryAttempts = 2

	result := testEngine(provider).Run(t.Context(), workflow, digestContext())

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorDetail, "still overloaded")
	provider.AssertNumberOfCalls(t, "Complete", 2)
}

func TestRun_ModelAndTokenLimitsReachTheProvider(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req ai.Request) bool {
		return req.Model == "gpt-4o" && req.MaxTokens == 512
	})).Return("ok", nil)

	workflow := &models.Workflow{
		ID:   "news-digest",
		Name: "News Digest",
		Steps: []*models.WorkflowStep{
			{ID: "only", Name: "Only step", Prompt: "go", Model: "gpt-4o", MaxTokens: 512},
		},
	}

	result := testEngine(provider).Run(t.Context(), workflow, digestContext())

	require.True(t, result.Success)
	provider.AssertExpectations(t)
}

func TestRun_ArtifactRenderedFromFinalStepOutput(t *testing.T) {
	provider := &mocks.MockAIProvider{}
	provider.On("Complete", mock.Anything, mock.Anything).Return("# digest body", nil)

	workflow := digestWorkflow()
	workflow.ArtifactTemplate = "digest-{{.run.id}}.md"

	result := testEngine(provider).Run(t.Context(), workflow, digestContext())

	require.True(t, result.Success)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "digest-run-1.md", result.Artifacts[0].Name)
	assert.Equal(t, "# digest body", string(result.Artifacts[0].Data))
}

func TestRun_InvalidPromptTemplateFailsTheStep(t *testing.T) {
	provider := &mocks.MockAIProvider{}

	workflow := digestWorkflow()
	workflow.Steps[0].Prompt = "{{.broken"

	result := testEngine(provider).Run(t.Context(), workflow, digestContext())

	require.False(t, result.Success)
	assert.Contains(t, result.ErrorDetail, "render prompt")
	provider.AssertNumberOfCalls(t, "Complete", 0)
}

func TestRun_CanceledContextStopsBetweenSteps(t *testing.T) {
	provider := &mocks.MockAIProvider{}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	result := testEngine(provider).Run(ctx, digestWorkflow(), digestContext())

	require.False(t, result.Success)
	assert.True(t, result.Canceled)
	provider.AssertNumberOfCalls(t, "Complete", 0)
}

func TestRun_CancellationMidStepIsNotAFailure(t *testing.T) {
	provider := &mocks.MockAIProvider{}

	ctx, cancel := context.WithCancel(t.Context())

	provider.On("Complete", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) { cancel() }).
		Return("", ai.NewTransient(errors.New("connection reset"))).
		Once()

	result := testEngine(provider).Run(ctx, digestWorkflow(), digestContext())

	require.False(t, result.Success)
	assert.True(t, result.Canceled)
	assert.Empty(t, result.ErrorDetail)
}
