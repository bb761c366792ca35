// Package fetcher performs rate-limited outbound HTTP GETs for catalog and
// provider clients.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body. Non-2xx
	// responses are returned as *StatusError.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
