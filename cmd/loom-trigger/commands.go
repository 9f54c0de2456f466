package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/loomwork/loom/pkg/cmd"
	"github.com/loomwork/loom/pkg/log"
	"github.com/loomwork/loom/pkg/models"
)

// envelope matches the trigger file format the daemon's blob source reads.
type envelope struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

// InjectTrigger writes a trigger envelope into the workflow's inbox prefix.
// The daemon picks it up on its next tick.
func InjectTrigger(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("loom-trigger")

	workflowID := command.String("workflow-id")

	var payload map[string]any

	err := json.Unmarshal([]byte(command.String("payload")), &payload)
	if err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}

	blobs, err := cmd.NewBlobStore(command.String("data-url"))
	if err != nil {
		return err
	}
	defer blobs.Close()

	prefix := command.String("prefix")
	if prefix == "" {
		prefix = fmt.Sprintf("inbox/%s/", workflowID)
	}

	triggerID := "trg-" + uuid.New().String()[:8]

	data, err := json.Marshal(envelope{
		ID:        triggerID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	key := prefix + triggerID + ".json"

	err = blobs.Write(ctx, key, data)
	if err != nil {
		return fmt.Errorf("write trigger file: %w", err)
	}

	logger.InfoContext(ctx, "Trigger injected",
		"workflow_id", workflowID,
		"trigger_id", triggerID,
		"key", key,
	)

	return nil
}

// ListAbandoned prints the operator-visible terminal failures.
func ListAbandoned(ctx context.Context, command *cli.Command) error {
	workflowID := command.String("workflow-id")

	store, err := cmd.NewPersistence(command.String("data-url"))
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	abandoned, err := store.Triggers().Abandoned(ctx, workflowID)
	if err != nil {
		return err
	}

	if len(abandoned) == 0 {
		fmt.Println("No abandoned triggers.")

		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRIGGER ID\tSOURCE\tATTEMPTS\tUPDATED\tLAST ERROR")

	for _, record := range abandoned {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			record.ID,
			record.Source,
			record.Attempts,
			record.UpdatedAt.Format(time.RFC3339),
			record.LastError,
		)
	}

	return w.Flush()
}

// RequeueTrigger copies an abandoned trigger's payload into a fresh pending
// trigger. The abandoned record stays terminal for the audit trail.
func RequeueTrigger(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("loom-trigger")

	workflowID := command.String("workflow-id")
	triggerID := command.String("trigger-id")

	store, err := cmd.NewPersistence(command.String("data-url"))
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	record, err := store.Triggers().Get(ctx, workflowID, triggerID)
	if err != nil {
		return err
	}

	if record.Status != models.TriggerStatusAbandoned {
		return fmt.Errorf("trigger %s is %s, only abandoned triggers can be requeued", triggerID, record.Status)
	}

	requeued := &models.Trigger{
		ID:         "trg-" + uuid.New().String()[:8],
		WorkflowID: workflowID,
		Source:     record.Source,
		CreatedAt:  time.Now().UTC(),
		Payload:    record.Payload,
	}

	created, _, err := store.Triggers().Observe(ctx, requeued)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Trigger requeued",
		"workflow_id", workflowID,
		"trigger_id", triggerID,
		"requeued_as", created.ID,
	)

	return nil
}
