package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/familyhub/centres-api/internal/cache"
	"github.com/familyhub/centres-api/internal/centre"
	"github.com/familyhub/centres-api/internal/ckan"
	"github.com/familyhub/centres-api/internal/config"
	"github.com/familyhub/centres-api/internal/db"
	"github.com/familyhub/centres-api/internal/fetcher"
	"github.com/familyhub/centres-api/pkg/geocode"
)

// openPool connects to the configured Postgres database.
func openPool(ctx context.Context, c *config.Config) (db.Pool, error) {
	pool, err := db.Open(ctx, c.Store.DatabaseURL, db.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open database")
	}
	return pool, nil
}

// newCKANClient builds the catalog client and its rate-limited fetcher.
func newCKANClient(c config.CKANConfig) *ckan.Client {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.UserAgent,
		Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
		RateLimit: rate.Limit(c.RateLimit),
	})
	return ckan.NewClient(f, ckan.Options{
		BaseURL:        c.BaseURL,
		PackageID:      c.PackageID,
		DatastoreLimit: c.DatastoreLimit,
		Concurrency:    c.Concurrency,
	})
}

// openCache opens the configured cache backend. pool may be nil unless the
// driver is postgres. The returned close func is always non-nil.
func openCache(ctx context.Context, c config.CacheConfig, pool db.Pool) (cache.Store, func(), error) {
	noop := func() {}
	switch c.Driver {
	case "postgres":
		if pool == nil {
			return nil, noop, eris.New("postgres cache requires a database connection")
		}
		return cache.NewPostgres(pool), noop, nil
	case "redis":
		st, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err != nil {
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	case "sqlite":
		st, err := cache.NewSQLite(c.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, noop, eris.Errorf("unsupported cache driver: %s", c.Driver)
	}
}

// newGeocoder builds the geocoding client. A missing key is not an error
// here; Geocode reports it per request.
func newGeocoder(c config.GeocodeConfig) geocode.Client {
	return geocode.NewClient(
		geocode.WithGoogleAPIKey(c.GoogleAPIKey),
		geocode.WithBaseURL(c.BaseURL),
		geocode.WithTimeout(time.Duration(c.TimeoutSecs)*time.Second),
		geocode.WithRateLimit(c.RateLimit),
	)
}

// newCentreService builds the query service over the PostGIS store.
func newCentreService(c config.CentresConfig, pool db.Pool) *centre.Service {
	return centre.NewService(centre.NewPostgresStore(pool), centre.ServiceOptions{
		DefaultMaxDistance: c.DefaultMaxDistance,
		DefaultLimit:       c.DefaultLimit,
		MaxLimit:           c.MaxLimit,
	})
}
