// Package blob abstracts the external file-storage collaborator. Every
// operation is atomic per path and strongly consistent for a single path; no
// cross-path transaction is assumed.
package blob

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the requested blob does not exist.
	ErrNotFound = errors.New("blob not found")

	// ErrEmptyKey indicates an empty storage key was provided.
	ErrEmptyKey = errors.New("storage key must not be empty")

	// ErrInvalidKey indicates the storage key contains a path traversal segment.
	ErrInvalidKey = errors.New("storage key contains invalid path segment")
)

// Store is the storage collaborator contract.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys under the given prefix, lexicographically sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// IsNotFound checks if an error indicates a missing blob.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}

	return nil
}
