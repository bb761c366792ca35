package centre

import "context"

// Store persists canonical centres and answers proximity queries.
type Store interface {
	// Replace swaps the whole centre collection for the given batch.
	Replace(ctx context.Context, centres []Centre) (int64, error)

	// FindNearest returns centres within q.MaxDistance meters of the query
	// point, nearest first, capped at q.Limit. Distance is always set.
	// ErrIndexUnavailable is reported only when the query fails; a table that
	// exists without its spatial index still answers (by sequential scan),
	// which IndexReady and /health expose.
	FindNearest(ctx context.Context, q NearestQuery) ([]Centre, error)

	// FindByLocID returns the centre with the given natural identifier.
	// Returns ErrNotFound when absent.
	FindByLocID(ctx context.Context, locID string) (*Centre, error)

	// IndexReady reports whether the spatial index exists.
	IndexReady(ctx context.Context) (bool, error)
}
