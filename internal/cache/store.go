// Package cache keeps the raw catalog fetch as a single replaceable document.
package cache

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Get when no document is stored under the key.
var ErrNotFound = eris.New("cache: no cached data")

// Store persists opaque JSON documents by key. Get returns exactly the bytes
// most recently passed to Put for the same key.
type Store interface {
	Put(ctx context.Context, key string, payload json.RawMessage) error
	Get(ctx context.Context, key string) (json.RawMessage, error)
}
