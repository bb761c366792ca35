package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewClient_Defaults(t *testing.T) {
	g := NewClient().(*geocoder)
	assert.Equal(t, googleGeocodeURL, g.baseURL)
	assert.Equal(t, 15*time.Second, g.httpClient.Timeout)
	assert.Equal(t, rate.Limit(10), g.limiter.Limit())
	assert.Empty(t, g.googleKey)
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{}
	g := NewClient(
		WithHTTPClient(hc),
		WithTimeout(3*time.Second),
		WithGoogleAPIKey("k"),
		WithBaseURL("http://geo.local/json"),
		WithRateLimit(0.5),
	).(*geocoder)

	assert.NotSame(t, hc, g.httpClient)
	assert.Equal(t, 3*time.Second, g.httpClient.Timeout)
	assert.Zero(t, hc.Timeout)
	assert.Equal(t, "k", g.googleKey)
	assert.Equal(t, "http://geo.local/json", g.baseURL)
	assert.Equal(t, rate.Limit(0.5), g.limiter.Limit())
	assert.Equal(t, 1, g.limiter.Burst())
}

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	before := http.DefaultClient.Timeout
	g := NewClient(WithHTTPClient(http.DefaultClient), WithTimeout(2*time.Second)).(*geocoder)

	assert.Equal(t, before, http.DefaultClient.Timeout)
	assert.Equal(t, 2*time.Second, g.httpClient.Timeout)
	assert.Equal(t, http.DefaultClient.Transport, g.httpClient.Transport)
}

func TestGeocode_NotConfigured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Geocode(context.Background(), "1 Yonge St")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, IsFailure(err))
	assert.Zero(t, calls.Load())
}

func TestGeocode_BaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		_, _ = io.WriteString(w, `{"status": "OK", "results": [{"geometry": {"location": {"lat": 43.7, "lng": -79.4}}}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithGoogleAPIKey("k"), WithBaseURL(srv.URL+"/maps/api/geocode/json"))
	result, err := c.Geocode(context.Background(), "Toronto")
	require.NoError(t, err)
	assert.Equal(t, 43.7, result.Lat)
	assert.Equal(t, -79.4, result.Lng)
}

func TestGeocode_ContextCancelled(t *testing.T) {
	c := NewClient(WithGoogleAPIKey("k"), WithRateLimit(0.001))
	g := c.(*geocoder)
	g.limiter.Allow() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Geocode(ctx, "Toronto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
