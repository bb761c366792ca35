// Package geocode resolves free-form addresses to coordinates through the
// Google Geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Errors returned by Client.Geocode.
var (
	// ErrNotConfigured means no API key was supplied.
	ErrNotConfigured = eris.New("geocode: api key not configured")
	// ErrGeocodingFailed matches every failure to produce a result.
	ErrGeocodingFailed = eris.New("geocode: geocoding failed")
)

// FailedError reports a provider answer without a usable result, such as
// ZERO_RESULTS or REQUEST_DENIED.
type FailedError struct {
	Status  string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("geocode: %s: %s", e.Status, e.Message)
}

// Is makes FailedError match ErrGeocodingFailed.
func (e *FailedError) Is(target error) bool {
	return target == ErrGeocodingFailed
}

// UpstreamError reports a transport failure or non-200 response from the
// provider. StatusCode is zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("geocode: provider returned status %d", e.StatusCode)
	}
	return "geocode: provider request: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes UpstreamError match ErrGeocodingFailed.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrGeocodingFailed
}

// Client geocodes addresses.
type Client interface {
	// Geocode returns the first provider match for address.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"-"`
	Quality          string  `json:"-"` // "rooftop", "range", "centroid", "approximate"
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey sets the Google Geocoding API key.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithBaseURL overrides the Google Geocoding endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. The client is copied first so a
// caller-supplied client (or http.DefaultClient) is never modified.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d <= 0 {
			return
		}
		hc := *g.httpClient
		hc.Timeout = d
		g.httpClient = &hc
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	googleKey  string
	limiter    *rate.Limiter
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    googleGeocodeURL,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode implements Client.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	if g.googleKey == "" {
		return nil, ErrNotConfigured
	}
	return g.geocodeGoogle(ctx, address)
}

// IsFailure reports whether err is a provider-level failure (400 class)
// rather than a transport or configuration problem.
func IsFailure(err error) bool {
	var fe *FailedError
	return errors.As(err, &fe)
}
