// Package store persists keypoint collections to blob storage.
package store

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = os.ErrNotExist
	// ErrInvalidName is returned for a blob name that escapes the store.
	ErrInvalidName = errors.New("invalid blob name")
)

// BlobStore is a flat namespace of immutable blobs.
type BlobStore interface {
	// Put writes a blob atomically, replacing any existing one.
	Put(ctx context.Context, name string, data []byte) error
	// Get reads a whole blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
