package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/providers/blob"
)

// BlobSource watches a storage prefix for dropped trigger files, the
// blob-backed analogue of a watched folder. A file whose name matches the
// configured pattern becomes a trigger; after a successful run the file is
// moved under the archive prefix.
type BlobSource struct {
	workflowID string
	prefix     string
	archive    string
	pattern    string
	blobs      blob.Store
	logger     *slog.Logger
}

// envelope is the optional structured trigger file format. Files that do not
// parse as an envelope are treated as raw payload content.
type envelope struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

func NewBlobSource(workflow *models.Workflow, blobs blob.Store, logger *slog.Logger) (*BlobSource, error) {
	config := workflow.Trigger.Configuration

	prefix, _ := config["prefix"].(string)
	if prefix == "" {
		prefix = fmt.Sprintf("inbox/%s/", workflow.ID)
	}

	archive, _ := config["archive_prefix"].(string)
	if archive == "" {
		archive = fmt.Sprintf("archive/%s/", workflow.ID)
	}

	pattern, _ := config["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}

	source := &BlobSource{
		workflowID: workflow.ID,
		prefix:     prefix,
		archive:    archive,
		pattern:    pattern,
		blobs:      blobs,
		logger: logger.With(
			"module", "blob_source",
			"workflow_id", workflow.ID,
			"prefix", prefix,
		),
	}

	err := source.Validate()
	if err != nil {
		return nil, err
	}

	return source, nil
}

func (s *BlobSource) Validate() error {
	// path.Match reports malformed patterns eagerly.
	_, err := path.Match(s.pattern, "probe")
	if err != nil {
		return fmt.Errorf("invalid trigger file pattern %q: %w", s.pattern, err)
	}

	if s.prefix == s.archive {
		return errors.New("trigger prefix and archive prefix must differ")
	}

	return nil
}

func (s *BlobSource) Poll(ctx context.Context) ([]*models.Trigger, error) {
	keys, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list trigger files: %w", err)
	}

	triggers := make([]*models.Trigger, 0, len(keys))

	for _, key := range keys {
		name := path.Base(key)

		matched, err := path.Match(s.pattern, name)
		if err != nil || !matched {
			continue
		}

		data, err := s.blobs.Read(ctx, key)
		if err != nil {
			if blob.IsNotFound(err) {
				// Archived between list and read.
				continue
			}

			return nil, fmt.Errorf("read trigger file %s: %w", key, err)
		}

		triggers = append(triggers, s.toTrigger(name, data))
	}

	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].CreatedAt.Equal(triggers[j].CreatedAt) {
			return triggers[i].ID < triggers[j].ID
		}

		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})

	return triggers, nil
}

func (s *BlobSource) toTrigger(name string, data []byte) *models.Trigger {
	var env envelope

	err := json.Unmarshal(data, &env)
	if err == nil && env.Payload != nil {
		id := env.ID
		if id == "" {
			id = name
		}

		payload := env.Payload
		payload["file"] = name

		return &models.Trigger{
			ID:         id,
			WorkflowID: s.workflowID,
			Source:     "blob",
			CreatedAt:  env.CreatedAt,
			Payload:    payload,
		}
	}

	// Raw file: the content itself is the payload. The ledger keeps the
	// first observation, so the timestamp is stable once recorded.
	return &models.Trigger{
		ID:         name,
		WorkflowID: s.workflowID,
		Source:     "blob",
		CreatedAt:  time.Now().UTC(),
		Payload: map[string]any{
			"file":    name,
			"content": string(data),
		},
	}
}

// Ack moves the trigger file under the archive prefix. Both halves are
// idempotent so a crash between copy and delete re-runs cleanly.
func (s *BlobSource) Ack(ctx context.Context, trigger *models.Trigger) error {
	name, _ := trigger.Payload["file"].(string)
	if name == "" {
		name = trigger.ID
	}

	key := s.prefix + name

	data, err := s.blobs.Read(ctx, key)
	if err != nil {
		if blob.IsNotFound(err) {
			return nil
		}

		return fmt.Errorf("read trigger file for archive %s: %w", key, err)
	}

	err = s.blobs.Write(ctx, s.archive+name, data)
	if err != nil {
		return fmt.Errorf("archive trigger file %s: %w", key, err)
	}

	err = s.blobs.Delete(ctx, key)
	if err != nil && !blob.IsNotFound(err) {
		return fmt.Errorf("remove archived trigger file %s: %w", key, err)
	}

	s.logger.DebugContext(ctx, "Trigger file archived", "file", name)

	return nil
}
