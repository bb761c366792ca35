package cache

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/familyhub/centres-api/internal/ckan"
)

// DefaultKey is the fixed document key for the centres fetch.
const DefaultKey = "centres_data"

// Fetcher produces a fresh catalog fetch.
type Fetcher interface {
	FetchCentres(ctx context.Context) (*ckan.FetchResult, error)
}

// Refresher replaces the cached fetch and reads it back.
type Refresher struct {
	fetcher Fetcher
	store   Store
	key     string
}

// NewRefresher creates a Refresher. An empty key uses DefaultKey.
func NewRefresher(f Fetcher, store Store, key string) *Refresher {
	if key == "" {
		key = DefaultKey
	}
	return &Refresher{fetcher: f, store: store, key: key}
}

// FetchError marks a failure to obtain data from the catalog, as opposed to
// a failure to store it.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Refresh fetches the catalog, stores the encoded result under the key, and
// returns the stored bytes.
func (r *Refresher) Refresh(ctx context.Context) (json.RawMessage, error) {
	result, err := r.fetcher.FetchCentres(ctx)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "cache: encode fetch result")
	}

	if err := r.store.Put(ctx, r.key, payload); err != nil {
		return nil, err
	}

	zap.L().Info("cache refreshed",
		zap.String("key", r.key),
		zap.Int("bytes", len(payload)),
		zap.Int("resources", len(result.Data)),
		zap.Int("errors", len(result.Errors)),
	)
	return payload, nil
}

// Read returns the cached document or ErrNotFound.
func (r *Refresher) Read(ctx context.Context) (json.RawMessage, error) {
	return r.store.Get(ctx, r.key)
}
