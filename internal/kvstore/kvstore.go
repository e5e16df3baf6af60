// Package kvstore provides the durable key/value stores that back the
// similarity cache and the metrics ring buffer.
//
// Values are opaque blobs written and read whole (get-all/set-all). Every
// backend reports quota exhaustion as ErrCapacityExceeded so callers can
// shrink their payload and retry.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ricesearch/quickquery/internal/config"
)

var (
	// ErrNotFound is returned by Load when the key does not exist.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrCapacityExceeded is returned by Save when the value does not fit.
	ErrCapacityExceeded = errors.New("kvstore: capacity exceeded")
)

// Store is a durable key/value store.
type Store interface {
	// Load returns the value stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the value stored under key.
	Save(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// New creates the store selected by cfg.
func New(cfg config.KVConfig) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemory(cfg.MaxBytes), nil
	case "redis":
		return NewRedis(RedisConfig{
			URL:           cfg.RedisURL,
			Prefix:        cfg.Prefix,
			MaxValueBytes: cfg.MaxBytes,
		})
	case "sqlite":
		return NewSQLite(cfg.SQLitePath, cfg.MaxBytes)
	default:
		return nil, fmt.Errorf("unknown kv store type: %s", cfg.Type)
	}
}

// IsCapacityExceeded reports whether err signals quota exhaustion.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}
