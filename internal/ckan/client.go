// Package ckan reads dataset packages and resources from a CKAN open-data
// catalog.
package ckan

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/familyhub/centres-api/internal/fetcher"
)

// CKAN hard-caps datastore_search page size at 32000 rows.
const maxDatastoreLimit = 32000

// Options configures a Client.
type Options struct {
	BaseURL        string // catalog root, e.g. https://ckan0.cf.opendata.inter.prod-toronto.ca
	PackageID      string // package fetched by FetchCentres
	DatastoreLimit int    // rows requested per datastore_search call
	Concurrency    int    // resources fetched in parallel
}

// Resource is one downloadable file or datastore table in a package.
type Resource struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Format          string `json:"format"`
	URL             string `json:"url"`
	DatastoreActive bool   `json:"datastore_active"`
}

// IsJSON reports whether the resource is served as JSON, by declared format
// or by download URL suffix.
func (r Resource) IsJSON() bool {
	return strings.EqualFold(r.Format, "json") || strings.HasSuffix(strings.ToLower(r.URL), ".json")
}

// Package is the subset of package_show metadata the client uses.
type Package struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Resources []Resource `json:"resources"`
}

// envelope is the standard CKAN action API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the CKAN action API.
type Client struct {
	f    fetcher.Fetcher
	opts Options
}

// NewClient creates a Client. Zero-valued options take the catalog defaults.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.DatastoreLimit <= 0 || opts.DatastoreLimit > maxDatastoreLimit {
		opts.DatastoreLimit = maxDatastoreLimit
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Client{f: f, opts: opts}
}

func (c *Client) actionURL(action string, params url.Values) string {
	return c.opts.BaseURL + "/api/3/action/" + action + "?" + params.Encode()
}

// call runs a CKAN action and returns the raw result member.
func (c *Client) call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	env, err := fetcher.GetJSON[envelope](ctx, c.f, c.actionURL(action, params))
	if err != nil {
		return nil, eris.Wrapf(err, "ckan: %s", action)
	}
	if !env.Success {
		msg := "request unsuccessful"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return nil, eris.Errorf("ckan: %s: %s", action, msg)
	}
	if len(env.Result) == 0 {
		return nil, eris.Errorf("ckan: %s: response has no result", action)
	}
	return env.Result, nil
}

// PackageShow returns the metadata for packageID.
func (c *Client) PackageShow(ctx context.Context, packageID string) (*Package, error) {
	raw, err := c.call(ctx, "package_show", url.Values{"id": {packageID}})
	if err != nil {
		return nil, err
	}
	var pkg Package
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, eris.Wrapf(err, "ckan: decode package %s", packageID)
	}
	return &pkg, nil
}

// DatastoreSearch returns the datastore_search result object for a resource
// verbatim.
func (c *Client) DatastoreSearch(ctx context.Context, resourceID string) (json.RawMessage, error) {
	return c.call(ctx, "datastore_search", url.Values{
		"id":    {resourceID},
		"limit": {strconv.Itoa(c.opts.DatastoreLimit)},
	})
}

// Download fetches a resource file and returns its JSON body verbatim.
func (c *Client) Download(ctx context.Context, rawURL string) (json.RawMessage, error) {
	data, err := fetcher.ReadRaw(ctx, c.f, rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "ckan: download")
	}
	return data, nil
}
