// Package template renders step prompts and artifact names against a run context.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/loomwork/loom/pkg/models"
)

// RenderWithContext renders input against the full run context, exposing the
// accumulated state data, trigger payload, fetched documents, and outputs of
// earlier steps.
func RenderWithContext(input string, runCtx *models.RunContext) (string, error) {
	data := map[string]any{
		"state":        runCtx.State.Data,
		"version":      runCtx.State.Version,
		"trigger_data": runCtx.TriggerData,
		"documents":    runCtx.Documents,
		"variables":    runCtx.Variables,
		"vars":         runCtx.Variables,
		"step_outputs": runCtx.StepOutputs,
		"run": map[string]any{
			"id":          runCtx.RunID,
			"workflow_id": runCtx.WorkflowID,
		},
	}

	return Render(input, data)
}

func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("prompt").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"today": func() string {
				return time.Now().UTC().Format("2006-01-02")
			},
			"json": func(v any) string {
				encoded, err := json.Marshal(v)
				if err != nil {
					return ""
				}

				return string(encoded)
			},
			"trim": strings.TrimSpace,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}
