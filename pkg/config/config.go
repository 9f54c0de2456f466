// Package config loads workflow definitions from JSON files. Definitions are
// validated twice: shape against an embedded JSON schema, then field rules
// via struct tags. They are immutable while the daemon runs; changes require
// a restart.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/loomwork/loom/pkg/models"
)

var validate = validator.New()

// LoadWorkflows reads every *.json file under dir as a workflow definition.
// Duplicate workflow ids across files are an error.
func LoadWorkflows(dir string) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions directory %s: %w", dir, err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))
	seen := make(map[string]string, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		workflow, err := LoadWorkflow(path)
		if err != nil {
			return nil, err
		}

		if prior, dup := seen[workflow.ID]; dup {
			return nil, fmt.Errorf("workflow id %s defined in both %s and %s", workflow.ID, prior, entry.Name())
		}

		seen[workflow.ID] = entry.Name()
		workflows = append(workflows, workflow)
	}

	if len(workflows) == 0 {
		return nil, fmt.Errorf("no workflow definitions found in %s", dir)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

// LoadWorkflow reads and validates a single definition file.
func LoadWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition file %s: %w", path, err)
	}

	err = validateSchema(data)
	if err != nil {
		return nil, fmt.Errorf("definition file %s: %w", path, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, fmt.Errorf("parse definition file %s: %w", path, err)
	}

	err = validate.Struct(&workflow)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow definition %s: %w", path, err)
	}

	err = validateSteps(&workflow)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow definition %s: %w", path, err)
	}

	return &workflow, nil
}

func validateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(workflowSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("schema validation errors: %s", strings.Join(descriptions, "; "))
	}

	return nil
}

func validateSteps(workflow *models.Workflow) error {
	seen := make(map[string]bool, len(workflow.Steps))

	for _, step := range workflow.Steps {
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id %s", step.ID)
		}

		seen[step.ID] = true
	}

	return nil
}
