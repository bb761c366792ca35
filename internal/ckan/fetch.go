package ckan

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Entry is one resource's outcome in a FetchResult.
type Entry struct {
	ResourceID string
	Payload    json.RawMessage // set in FetchResult.Data
	Message    string          // set in FetchResult.Errors
}

// FetchResult holds fetched payloads and per-resource failures, each in
// package resource order. It encodes as
// {"data": {id: payload, ...}, "errors": {id: message, ...}}.
type FetchResult struct {
	Data   []Entry
	Errors []Entry
}

// MarshalJSON implements json.Marshaler, preserving entry order.
func (r *FetchResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"data":`)
	if err := writeObject(&buf, r.Data, func(e Entry) ([]byte, error) {
		if len(e.Payload) == 0 {
			return []byte("null"), nil
		}
		return e.Payload, nil
	}); err != nil {
		return nil, err
	}
	buf.WriteString(`,"errors":`)
	if err := writeObject(&buf, r.Errors, func(e Entry) ([]byte, error) {
		return json.Marshal(e.Message)
	}); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, entries []Entry, value func(Entry) ([]byte, error)) error {
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.ResourceID)
		if err != nil {
			return eris.Wrap(err, "ckan: encode resource id")
		}
		val, err := value(e)
		if err != nil {
			return eris.Wrapf(err, "ckan: encode entry %s", e.ResourceID)
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(buf, val); err != nil {
			return eris.Wrapf(err, "ckan: encode entry %s", e.ResourceID)
		}
	}
	buf.WriteByte('}')
	return nil
}

// set records an entry, replacing an earlier one with the same id in place.
func set(entries []Entry, e Entry) []Entry {
	for i := range entries {
		if entries[i].ResourceID == e.ResourceID {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

// FetchCentres fetches every JSON resource of the configured package.
// Datastore-active resources are read through datastore_search, the rest are
// downloaded. A failing resource is reported in Errors and does not fail the
// fetch; only a failing package_show does.
func (c *Client) FetchCentres(ctx context.Context) (*FetchResult, error) {
	log := zap.L().With(zap.String("component", "ckan"), zap.String("package", c.opts.PackageID))

	pkg, err := c.PackageShow(ctx, c.opts.PackageID)
	if err != nil {
		return nil, err
	}

	var resources []Resource
	for _, r := range pkg.Resources {
		if !r.IsJSON() {
			log.Debug("skipping non-JSON resource",
				zap.String("resource_id", r.ID),
				zap.String("format", r.Format),
				zap.String("url", r.URL),
			)
			continue
		}
		resources = append(resources, r)
	}

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	outcomes := make([]outcome, len(resources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for i, r := range resources {
		g.Go(func() error {
			var (
				payload json.RawMessage
				err     error
			)
			if r.DatastoreActive {
				log.Info("fetching datastore resource", zap.String("resource_id", r.ID))
				payload, err = c.DatastoreSearch(gctx, r.ID)
			} else {
				log.Info("downloading resource", zap.String("resource_id", r.ID), zap.String("url", r.URL))
				payload, err = c.Download(gctx, r.URL)
			}
			if err != nil {
				log.Warn("resource fetch failed", zap.String("resource_id", r.ID), zap.Error(err))
			}
			outcomes[i] = outcome{payload: payload, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "ckan: fetch centres")
	}

	result := &FetchResult{Data: []Entry{}, Errors: []Entry{}}
	for i, r := range resources {
		o := outcomes[i]
		if o.err != nil {
			result.Errors = set(result.Errors, Entry{ResourceID: r.ID, Message: o.err.Error()})
			continue
		}
		result.Data = set(result.Data, Entry{ResourceID: r.ID, Payload: o.payload})
	}

	log.Info("fetched centres package",
		zap.Int("resources", len(pkg.Resources)),
		zap.Int("json_resources", len(resources)),
		zap.Int("fetched", len(result.Data)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}
