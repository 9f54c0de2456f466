package blobstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/persistence"
	"github.com/loomwork/loom/pkg/providers/blob"
)

// StateRepository stores one immutable blob per state version plus a head
// pointer blob that is swapped atomically on commit.
type StateRepository struct {
	blobs blob.Store
}

func NewStateRepository(blobs blob.Store) *StateRepository {
	return &StateRepository{blobs: blobs}
}

func headKey(workflowID string) string {
	return fmt.Sprintf("states/%s/head.json", workflowID)
}

func versionKey(workflowID string, version int64) string {
	return fmt.Sprintf("states/%s/versions/%08d.json", workflowID, version)
}

func (r *StateRepository) Latest(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	data, err := r.blobs.Read(ctx, headKey(workflowID))
	if err != nil {
		if blob.IsNotFound(err) {
			return nil, &persistence.StateError{Op: "Latest", WorkflowID: workflowID, Err: persistence.ErrStateNotFound}
		}

		return nil, &persistence.StateError{Op: "Latest", WorkflowID: workflowID, Err: err}
	}

	var state models.WorkflowState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, &persistence.StateError{Op: "Latest", WorkflowID: workflowID, Err: err}
	}

	return &state, nil
}

func (r *StateRepository) Version(ctx context.Context, workflowID string, version int64) (*models.WorkflowState, error) {
	data, err := r.blobs.Read(ctx, versionKey(workflowID, version))
	if err != nil {
		if blob.IsNotFound(err) {
			return nil, &persistence.StateError{Op: "Version", WorkflowID: workflowID, Version: version, Err: persistence.ErrStateNotFound}
		}

		return nil, &persistence.StateError{Op: "Version", WorkflowID: workflowID, Version: version, Err: err}
	}

	var state models.WorkflowState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, &persistence.StateError{Op: "Version", WorkflowID: workflowID, Version: version, Err: err}
	}

	return &state, nil
}

// Commit first writes the immutable version blob, then swaps the head. A
// crash between the two writes leaves history intact and the head untouched,
// so the commit simply did not happen.
func (r *StateRepository) Commit(ctx context.Context, state *models.WorkflowState, expectedVersion int64) error {
	head, err := r.Latest(ctx, state.WorkflowID)
	if err != nil && !persistence.IsStateNotFound(err) {
		return err
	}

	var headVersion int64
	if head != nil {
		headVersion = head.Version
	}

	if headVersion != expectedVersion {
		return &persistence.StateError{
			Op:         "Commit",
			WorkflowID: state.WorkflowID,
			Version:    state.Version,
			Err:        fmt.Errorf("%w: head is %d, expected %d", persistence.ErrVersionConflict, headVersion, expectedVersion),
		}
	}

	if state.Version != expectedVersion+1 {
		return &persistence.StateError{
			Op:         "Commit",
			WorkflowID: state.WorkflowID,
			Version:    state.Version,
			Err:        fmt.Errorf("%w: commit must advance %d to %d", persistence.ErrVersionConflict, expectedVersion, expectedVersion+1),
		}
	}

	data, err := json.Marshal(state)
	if err != nil {
		return &persistence.StateError{Op: "Commit", WorkflowID: state.WorkflowID, Version: state.Version, Err: err}
	}

	err = r.blobs.Write(ctx, versionKey(state.WorkflowID, state.Version), data)
	if err != nil {
		return &persistence.StateError{Op: "Commit", WorkflowID: state.WorkflowID, Version: state.Version, Err: err}
	}

	err = r.blobs.Write(ctx, headKey(state.WorkflowID), data)
	if err != nil {
		return &persistence.StateError{Op: "Commit", WorkflowID: state.WorkflowID, Version: state.Version, Err: err}
	}

	return nil
}
