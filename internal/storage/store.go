// Package storage persists the account as a single JSON document behind a
// pluggable key/value blob store.
package storage

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by ReadBlob when nothing is stored under the key.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is raw key/value persistence for serialized documents.
type BlobStore interface {
	ReadBlob(ctx context.Context, key string) ([]byte, error)
	WriteBlob(ctx context.Context, key string, data []byte) error
	Close() error
}
