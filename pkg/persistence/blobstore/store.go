// Package blobstore implements persistence on top of the blob storage
// collaborator. Nothing here assumes more than per-path atomic writes, so it
// works equally against the filesystem and Azure backends.
package blobstore

import (
	"context"

	"github.com/loomwork/loom/pkg/persistence"
	"github.com/loomwork/loom/pkg/providers/blob"
)

// Store implements the persistence.Persistence interface over a blob.Store.
type Store struct {
	blobs     blob.Store
	states    *StateRepository
	triggers  *TriggerLedger
	artifacts *ArtifactRepository
}

func New(blobs blob.Store) *Store {
	return &Store{
		blobs:     blobs,
		states:    NewStateRepository(blobs),
		triggers:  NewTriggerLedger(blobs),
		artifacts: NewArtifactRepository(blobs),
	}
}

func (s *Store) States() persistence.StateRepository {
	return s.states
}

func (s *Store) Triggers() persistence.TriggerLedger {
	return s.triggers
}

func (s *Store) Artifacts() persistence.ArtifactRepository {
	return s.artifacts
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.blobs.HealthCheck(ctx)
}

func (s *Store) Close(_ context.Context) error {
	return s.blobs.Close()
}
