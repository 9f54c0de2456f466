package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
	"github.com/loomwork/loom/pkg/providers/blob"
)

// TriggerLedger stores one record blob per observed trigger. The scheduler
// guarantees a single writer per workflow, so read-modify-write on a record
// is safe without a storage-level lock.
type TriggerLedger struct {
	blobs blob.Store
}

func NewTriggerLedger(blobs blob.Store) *TriggerLedger {
	return &TriggerLedger{blobs: blobs}
}

func recordKey(workflowID, triggerID string) string {
	return fmt.Sprintf("triggers/%s/%s.json", workflowID, triggerID)
}

func recordPrefix(workflowID string) string {
	return fmt.Sprintf("triggers/%s/", workflowID)
}

func (l *TriggerLedger) Observe(ctx context.Context, trigger *models.Trigger) (*models.TriggerRecord, bool, error) {
	existing, err := l.Get(ctx, trigger.WorkflowID, trigger.ID)
	if err == nil {
		return existing, false, nil
	}

	if !persistence.IsTriggerNotFound(err) {
		return nil, false, err
	}

	record := &models.TriggerRecord{
		Trigger:   *trigger,
		Status:    models.TriggerStatusPending,
		UpdatedAt: time.Now().UTC(),
	}

	err = l.save(ctx, record)
	if err != nil {
		return nil, false, err
	}

	return record, true, nil
}

func (l *TriggerLedger) Get(ctx context.Context, workflowID, triggerID string) (*models.TriggerRecord, error) {
	data, err := l.blobs.Read(ctx, recordKey(workflowID, triggerID))
	if err != nil {
		if blob.IsNotFound(err) {
			return nil, &persistence.TriggerError{Op: "Get", WorkflowID: workflowID, TriggerID: triggerID, Err: persistence.ErrTriggerNotFound}
		}

		return nil, &persistence.TriggerError{Op: "Get", WorkflowID: workflowID, TriggerID: triggerID, Err: err}
	}

	var record models.TriggerRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, &persistence.TriggerError{Op: "Get", WorkflowID: workflowID, TriggerID: triggerID, Err: err}
	}

	return &record, nil
}

func (l *TriggerLedger) MarkProcessing(ctx context.Context, workflowID, triggerID string, baseVersion int64) (*models.TriggerRecord, error) {
	record, err := l.transition(ctx, "MarkProcessing", workflowID, triggerID, models.TriggerStatusProcessing, func(r *models.TriggerRecord) {
		r.BaseVersion = baseVersion
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (l *TriggerLedger) MarkConsumed(ctx context.Context, workflowID, triggerID string) error {
	_, err := l.transition(ctx, "MarkConsumed", workflowID, triggerID, models.TriggerStatusConsumed, nil)

	return err
}

func (l *TriggerLedger) MarkFailed(ctx context.Context, workflowID, triggerID, errDetail string, budget int) (*models.TriggerRecord, error) {
	record, err := l.Get(ctx, workflowID, triggerID)
	if err != nil {
		return nil, err
	}

	next := models.TriggerStatusFailedRetryable
	if record.Attempts+1 >= budget {
		next = models.TriggerStatusAbandoned
	}

	return l.transition(ctx, "MarkFailed", workflowID, triggerID, next, func(r *models.TriggerRecord) {
		r.Attempts++
		r.LastError = errDetail
	})
}

func (l *TriggerLedger) Release(ctx context.Context, workflowID, triggerID string) error {
	_, err := l.transition(ctx, "Release", workflowID, triggerID, models.TriggerStatusPending, nil)

	return err
}

func (l *TriggerLedger) Pending(ctx context.Context, workflowID string) ([]*models.TriggerRecord, error) {
	return l.byStatus(ctx, workflowID, models.TriggerStatusPending, models.TriggerStatusFailedRetryable)
}

func (l *TriggerLedger) Processing(ctx context.Context, workflowID string) ([]*models.TriggerRecord, error) {
	return l.byStatus(ctx, workflowID, models.TriggerStatusProcessing)
}

func (l *TriggerLedger) Abandoned(ctx context.Context, workflowID string) ([]*models.TriggerRecord, error) {
	return l.byStatus(ctx, workflowID, models.TriggerStatusAbandoned)
}

func (l *TriggerLedger) save(ctx context.Context, record *models.TriggerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return &persistence.TriggerError{Op: "save", WorkflowID: record.WorkflowID, TriggerID: record.ID, Err: err}
	}

	err = l.blobs.Write(ctx, recordKey(record.WorkflowID, record.ID), data)
	if err != nil {
		return &persistence.TriggerError{Op: "save", WorkflowID: record.WorkflowID, TriggerID: record.ID, Err: err}
	}

	return nil
}

func (l *TriggerLedger) transition(
	ctx context.Context,
	op, workflowID, triggerID string,
	next models.TriggerStatus,
	mutate func(*models.TriggerRecord),
) (*models.TriggerRecord, error) {
	record, err := l.Get(ctx, workflowID, triggerID)
	if err != nil {
		return nil, err
	}

	if !record.Status.CanTransition(next) {
		return nil, &persistence.TriggerError{
			Op:         op,
			WorkflowID: workflowID,
			TriggerID:  triggerID,
			Err:        fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidTransition, record.Status, next),
		}
	}

	record.Status = next
	record.UpdatedAt = time.Now().UTC()

	if mutate != nil {
		mutate(record)
	}

	err = l.save(ctx, record)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (l *TriggerLedger) byStatus(ctx context.Context, workflowID string, statuses ...models.TriggerStatus) ([]*models.TriggerRecord, error) {
	keys, err := l.blobs.List(ctx, recordPrefix(workflowID))
	if err != nil {
		return nil, &persistence.TriggerError{Op: "byStatus", WorkflowID: workflowID, Err: err}
	}

	wanted := make(map[models.TriggerStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	records := make([]*models.TriggerRecord, 0)

	for _, key := range keys {
		data, err := l.blobs.Read(ctx, key)
		if err != nil {
			if blob.IsNotFound(err) {
				continue
			}

			return nil, &persistence.TriggerError{Op: "byStatus", WorkflowID: workflowID, Err: err}
		}

		var record models.TriggerRecord

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, &persistence.TriggerError{Op: "byStatus", WorkflowID: workflowID, Err: err}
		}

		if wanted[record.Status] {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}
