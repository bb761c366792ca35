package centre

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Query defaults applied when a request leaves a field unset.
const (
	DefaultMaxDistance = 5000.0
	DefaultLimit       = 50
)

// ServiceOptions tunes nearest-query defaults.
type ServiceOptions struct {
	DefaultMaxDistance float64
	DefaultLimit       int
	MaxLimit           int
}

// Service answers centre queries against a Store.
type Service struct {
	store Store
	opts  ServiceOptions
}

// NewService creates a Service. Zero option values fall back to the
// package defaults.
func NewService(store Store, opts ServiceOptions) *Service {
	if opts.DefaultMaxDistance <= 0 {
		opts.DefaultMaxDistance = DefaultMaxDistance
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &Service{store: store, opts: opts}
}

// FindNearest returns up to q.Limit centres within q.MaxDistance meters of
// (q.Lat, q.Lng), nearest first. Zero MaxDistance and Limit take the service
// defaults; Limit is capped at MaxLimit. An empty store yields an empty slice.
func (s *Service) FindNearest(ctx context.Context, q NearestQuery) ([]Centre, error) {
	if !(Point{Lng: q.Lng, Lat: q.Lat}).Valid() {
		return nil, eris.Wrapf(ErrInvalidQueryPoint, "lat=%g lng=%g", q.Lat, q.Lng)
	}
	if q.MaxDistance < 0 || math.IsNaN(q.MaxDistance) || math.IsInf(q.MaxDistance, 0) {
		return nil, eris.Wrapf(ErrInvalidQueryPoint, "max_distance=%g", q.MaxDistance)
	}
	if q.MaxDistance == 0 {
		q.MaxDistance = s.opts.DefaultMaxDistance
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit > s.opts.MaxLimit {
		q.Limit = s.opts.MaxLimit
	}

	found, err := s.store.FindNearest(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]Centre, 0, len(found))
	for _, c := range found {
		if c.Distance == nil || *c.Distance > q.MaxDistance {
			continue
		}
		out = append(out, c)
	}
	// Stable: equal distances keep the store's order.
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Distance < *out[j].Distance
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// FindByID looks a centre up by its natural identifier.
func (s *Service) FindByID(ctx context.Context, locID string) (*Centre, error) {
	locID = strings.TrimSpace(locID)
	if locID == "" {
		return nil, eris.Wrap(ErrNotFound, "empty loc_id")
	}
	return s.store.FindByLocID(ctx, locID)
}

// IndexReady reports whether nearest queries can be served.
func (s *Service) IndexReady(ctx context.Context) (bool, error) {
	return s.store.IndexReady(ctx)
}
