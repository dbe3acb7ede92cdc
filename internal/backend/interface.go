// Package backend selects and opens the blob store named by DATA_BACKEND.
package backend

import (
	"context"

	"cajero/internal/storage"
)

// Type names a storage backend.
type Type string

const (
	FileBackend   Type = "file"
	SQLiteBackend Type = "sqlite"
	RedisBackend  Type = "redis"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known.
func (t Type) IsValid() bool {
	switch t {
	case FileBackend, SQLiteBackend, RedisBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result holds the opened store and the readiness check for /readyz.
type Result struct {
	Store storage.BlobStore
	Ready func(ctx context.Context) error
}

// Close releases the store.
func (r *Result) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Config holds the settings each backend needs.
type Config struct {
	Type Type

	// file
	DataDir string

	// sqlite
	SQLiteDBPath string

	// redis
	RedisAddrs    []string
	RedisPassword string
	RedisDB       int
}
