package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/loomwork/loom/pkg/persistence"
	"github.com/loomwork/loom/pkg/persistence/blobstore"
	"github.com/loomwork/loom/pkg/providers/blob"
)

const defaultAzureContainer = "loom"

// NewBlobStore builds the storage backend from the data URL. Supported
// schemes: file://<dir> and azblob://<container> (connection string from
// AZURE_STORAGE_CONNECTION_STRING).
func NewBlobStore(dataURL string) (blob.Store, error) {
	switch {
	case strings.HasPrefix(dataURL, "azblob://"):
		container := strings.TrimPrefix(dataURL, "azblob://")
		if container == "" {
			container = defaultAzureContainer
		}

		connectionString := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
		if connectionString == "" {
			return nil, fmt.Errorf("azblob data url requires AZURE_STORAGE_CONNECTION_STRING")
		}

		return blob.NewAzure(connectionString, container)
	default:
		return blob.NewFilesystem(dataURL)
	}
}

// NewPersistence wires the blob backend into the persistence layer.
func NewPersistence(dataURL string) (persistence.Persistence, error) {
	blobs, err := NewBlobStore(dataURL)
	if err != nil {
		return nil, err
	}

	return blobstore.New(blobs), nil
}
