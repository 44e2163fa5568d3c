package repository

import (
	"context"
)

// Entry is one key/value pair written by Store.Put.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the key-value persistence boundary for workspace snapshots.
// Get returns domain.ErrKeyNotFound for a missing key. Put writes all
// entries atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
