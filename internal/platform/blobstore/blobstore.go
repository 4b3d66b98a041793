// Package blobstore abstracts object storage for audit archives and export
// artifacts.
package blobstore

import (
	"context"

	dErrors "workspace-audit/pkg/domain-errors"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = dErrors.New(dErrors.CodeNotFound, "object not found")

// Store is raw object I/O. Implementations must be safe for concurrent use.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns ErrObjectNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete returns ErrObjectNotFound if the key does not exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}
