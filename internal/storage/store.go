// Package storage persists small pieces of local client state, such as the
// authenticated identity, across process restarts.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when nothing is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a key/value store for local state.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context, key string) error
}
