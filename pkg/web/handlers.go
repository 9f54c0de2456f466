// Package web provides the daemon's HTTP status API: health, workflow state
// inspection, and the operator surface for abandoned triggers.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
)

type APIHandlers struct {
	workflows   map[string]*models.Workflow
	ordered     []*models.Workflow
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewAPIHandlers(workflows []*models.Workflow, store persistence.Persistence, logger *slog.Logger) *APIHandlers {
	byID := make(map[string]*models.Workflow, len(workflows))
	for _, workflow := range workflows {
		byID[workflow.ID] = workflow
	}

	return &APIHandlers{
		workflows:   byID,
		ordered:     workflows,
		persistence: store,
		logger:      logger.With("module", "api"),
	}
}

// Register mounts all routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/workflows", h.GetWorkflows)
	app.Get("/workflows/:id/state", h.GetWorkflowState)
	app.Get("/triggers/abandoned", h.GetAbandonedTriggers)
	app.Post("/triggers/:id/requeue", h.RequeueTrigger)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"workflows": len(h.workflows),
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	summaries := make([]fiber.Map, 0, len(h.ordered))

	for _, workflow := range h.ordered {
		summary := fiber.Map{
			"id":           workflow.ID,
			"name":         workflow.Name,
			"description":  workflow.Description,
			"trigger_type": workflow.Trigger.Type,
			"steps":        len(workflow.Steps),
		}

		head, err := h.persistence.States().Latest(c.Context(), workflow.ID)
		if err == nil {
			summary["state_version"] = head.Version
			summary["state_updated_at"] = head.UpdatedAt
		} else if !persistence.IsStateNotFound(err) {
			return internalError(c, err)
		}

		summaries = append(summaries, summary)
	}

	return c.JSON(fiber.Map{"workflows": summaries})
}

func (h *APIHandlers) GetWorkflowState(c fiber.Ctx) error {
	id := c.Params("id")

	if _, ok := h.workflows[id]; !ok {
		return notFound(c, "Workflow not found")
	}

	state, err := h.persistence.States().Latest(c.Context(), id)
	if err != nil {
		if persistence.IsStateNotFound(err) {
			return notFound(c, "No state committed yet")
		}

		return internalError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) GetAbandonedTriggers(c fiber.Ctx) error {
	records := make([]*models.TriggerRecord, 0)

	for _, workflow := range h.ordered {
		abandoned, err := h.persistence.Triggers().Abandoned(c.Context(), workflow.ID)
		if err != nil {
			return internalError(c, err)
		}

		records = append(records, abandoned...)
	}

	return c.JSON(fiber.Map{
		"abandoned": records,
		"count":     len(records),
	})
}

// RequeueTrigger re-submits an abandoned trigger's payload as a fresh
// trigger. Abandoned is terminal, so the original record is left in place
// for the audit trail.
func (h *APIHandlers) RequeueTrigger(c fiber.Ctx) error {
	triggerID := c.Params("id")

	workflowID := c.Query("workflow_id")
	if workflowID == "" {
		return badRequest(c, "workflow_id query parameter is required")
	}

	if _, ok := h.workflows[workflowID]; !ok {
		return notFound(c, "Workflow not found")
	}

	record, err := h.persistence.Triggers().Get(c.Context(), workflowID, triggerID)
	if err != nil {
		if persistence.IsTriggerNotFound(err) {
			return notFound(c, "Trigger not found")
		}

		return internalError(c, err)
	}

	if record.Status != models.TriggerStatusAbandoned {
		return conflict(c, "Only abandoned triggers can be requeued")
	}

	requeued := &models.Trigger{
		ID:         "trg-" + uuid.New().String()[:8],
		WorkflowID: workflowID,
		Source:     record.Source,
		CreatedAt:  time.Now().UTC(),
		Payload:    record.Payload,
	}

	created, _, err := h.persistence.Triggers().Observe(c.Context(), requeued)
	if err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Abandoned trigger requeued",
		"workflow_id", workflowID,
		"trigger_id", triggerID,
		"requeued_as", created.ID,
	)

	return c.Status(fiber.StatusCreated).JSON(created)
}
