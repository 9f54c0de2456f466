package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/models"
)

func testRunContext() *models.RunContext {
	return &models.RunContext{
		RunID:      "run-1",
		WorkflowID: "news-digest",
		State: &models.WorkflowState{
			WorkflowID: "news-digest",
			Version:    3,
			Data:       map[string]any{"summary": "yesterday's digest"},
		},
		TriggerData: map[string]any{"topic": "markets"},
		Documents: []models.Document{
			{ID: "m1", Subject: "Daily digest", Body: "headline one"},
		},
		Variables:   map[string]any{"tone": "brief"},
		StepOutputs: map[string]string{"summarize": "three stories"},
	}
}

func TestRenderWithContext_StateAndTriggerData(t *testing.T) {
	out, err := RenderWithContext(
		"Prior: {{ .state.summary }}. Topic: {{ .trigger_data.topic }}.",
		testRunContext(),
	)
	require.NoError(t, err)
	assert.Equal(t, "Prior: yesterday's digest. Topic: markets.", out)
}

func TestRenderWithContext_StepOutputsChain(t *testing.T) {
	out, err := RenderWithContext(
		"Refine this summary: {{ index .step_outputs \"summarize\" }}",
		testRunContext(),
	)
	require.NoError(t, err)
	assert.Equal(t, "Refine this summary: three stories", out)
}

func TestRenderWithContext_Documents(t *testing.T) {
	out, err := RenderWithContext(
		"{{ range .documents }}{{ .Subject }}: {{ .Body }}{{ end }}",
		testRunContext(),
	)
	require.NoError(t, err)
	assert.Equal(t, "Daily digest: headline one", out)
}

func TestRender_Functions(t *testing.T) {
	out, err := Render("{{ today }}", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), out)

	out, err = Render(`{{ json .payload }}`, map[string]any{"payload": map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out)
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .unclosed", nil)
	assert.Error(t, err)
}
