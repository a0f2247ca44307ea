// Package store defines the Progress Store used to checkpoint loader state,
// its file, SQLite, Redis and in-memory backends, and the Parquet archive
// for completed quote sets.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by ProgressStore.Get when no value exists for the
// key.
var ErrNotFound = errors.New("store: key not found")

// ProgressStore is a durable key-value surface for serialized checkpoints.
// Implementations do not interpret the value and do not expire entries on
// their own; staleness is decided by the reader.
type ProgressStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
