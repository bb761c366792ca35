package geocode

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

// newTestGeocoder points a keyed geocoder at srvURL without rate limiting.
func newTestGeocoder(srvURL string) *geocoder {
	return &geocoder{
		httpClient: &http.Client{},
		baseURL:    srvURL,
		googleKey:  "test-key",
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

// googleServer serves a fixed Geocoding API body and status.
func googleServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
