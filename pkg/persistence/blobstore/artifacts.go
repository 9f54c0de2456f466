package blobstore

import (
	"context"
	"fmt"

	"github.com/loomwork/loom/pkg/models"
	"github.com/loomwork/loom/pkg/providers/blob"
)

// ArtifactRepository stores run outputs under artifacts/<workflow>/<run>/.
type ArtifactRepository struct {
	blobs blob.Store
}

func NewArtifactRepository(blobs blob.Store) *ArtifactRepository {
	return &ArtifactRepository{blobs: blobs}
}

func (r *ArtifactRepository) Write(ctx context.Context, workflowID, runID string, artifact models.Artifact) error {
	key := fmt.Sprintf("artifacts/%s/%s/%s", workflowID, runID, artifact.Name)

	err := r.blobs.Write(ctx, key, artifact.Data)
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}

	return nil
}

func (r *ArtifactRepository) List(ctx context.Context, workflowID string) ([]string, error) {
	keys, err := r.blobs.List(ctx, fmt.Sprintf("artifacts/%s/", workflowID))
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", workflowID, err)
	}

	return keys, nil
}
