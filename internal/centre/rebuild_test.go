package centre

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyhub/centres-api/internal/cache"
	"github.com/familyhub/centres-api/internal/ckan"
)

const rebuildRecords = `[
	{"loc_id": 1, "geometry": "{\"type\": \"Point\", \"coordinates\": [-79.4, 43.7]}"},
	{"loc_id": 1, "lat": 43.7, "lng": -79.4},
	{"program_name": "No ID"},
	{"loc_id": 3}
]`

const rebuildPayload = `{"data": {"res": {"records": ` + rebuildRecords + `}}}`

func staticSource(payload string) PayloadSource {
	return PayloadSourceFunc(func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	})
}

func TestRebuilder_Run(t *testing.T) {
	store := &fakeStore{}
	report, err := NewRebuilder(staticSource(rebuildPayload), store).Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, "res", report.DatasetID)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, int64(1), report.Inserted)
	assert.Equal(t, 3, report.Rejected)
	assert.Equal(t, map[RejectReason]int{
		DuplicateIdentifier: 1,
		MissingIdentifier:   1,
		NoLocation:          1,
	}, report.ByReason)
	require.Len(t, store.replaced, 1)
	assert.Equal(t, "1", store.replaced[0].LocID)
}

func TestRebuilder_DryRun(t *testing.T) {
	store := &fakeStore{}
	report, err := NewRebuilder(staticSource(rebuildPayload), store).Run(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Accepted)
	assert.Zero(t, report.Inserted)
	assert.Nil(t, store.replaced)
}

func TestRebuilder_SourceError(t *testing.T) {
	src := PayloadSourceFunc(func(context.Context) (json.RawMessage, error) {
		return nil, fmt.Errorf("no cached data")
	})
	_, err := NewRebuilder(src, &fakeStore{}).Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load payload")
}

func TestRebuilder_MalformedPayload(t *testing.T) {
	store := &fakeStore{}
	_, err := NewRebuilder(staticSource(`{"data": {}}`), store).Run(context.Background(), false)
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Nil(t, store.replaced)
}

func TestRebuilder_ReplaceError(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("disk full")}
	_, err := NewRebuilder(staticSource(rebuildPayload), store).Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "centre: rebuild: replace")
	assert.Contains(t, err.Error(), "disk full")
	assert.NotErrorIs(t, err, ErrMalformedPayload)
}

type staticCatalog struct {
	result *ckan.FetchResult
}

func (c staticCatalog) FetchCentres(context.Context) (*ckan.FetchResult, error) {
	return c.result, nil
}

func TestRebuilder_FromRefreshedCache(t *testing.T) {
	ctx := context.Background()

	docs, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer docs.Close()
	require.NoError(t, docs.Migrate(ctx))

	refresher := cache.NewRefresher(staticCatalog{result: &ckan.FetchResult{
		Data: []ckan.Entry{
			{ResourceID: "res", Payload: json.RawMessage(`{"records": ` + rebuildRecords + `}`)},
			{ResourceID: "other", Payload: json.RawMessage(`{"records": []}`)},
		},
		Errors: []ckan.Entry{{ResourceID: "broken", Message: "unexpected status 500"}},
	}}, docs, "")

	store := &fakeStore{}
	report, err := NewRebuilder(PayloadSourceFunc(refresher.Refresh), store).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "res", report.DatasetID)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 3, report.Rejected)
	require.Len(t, store.replaced, 1)

	// A later rebuild from the stored document sees the same records.
	store = &fakeStore{}
	report, err = NewRebuilder(PayloadSourceFunc(refresher.Read), store).Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Inserted)
	assert.Equal(t, Point{Lng: -79.4, Lat: 43.7}, store.replaced[0].Location)
}
