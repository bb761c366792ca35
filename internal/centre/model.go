package centre

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// RawRecord is one dataset row as received from the catalog. Values are kept
// verbatim so passthrough attributes round-trip unchanged.
type RawRecord map[string]json.RawMessage

// Point is a WGS84 position. It serializes as a GeoJSON Point with
// coordinates in [longitude, latitude] order.
type Point struct {
	Lng float64
	Lat float64
}

// Valid reports whether the point is finite and within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lng) || math.IsNaN(p.Lat) || math.IsInf(p.Lng, 0) || math.IsInf(p.Lat, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	data, err := geojson.Marshal(geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}))
	if err != nil {
		return nil, eris.Wrap(err, "centre: encode point")
	}
	return data, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Point) UnmarshalJSON(data []byte) error {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return eris.Wrap(err, "centre: decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok || len(pt.FlatCoords()) < 2 {
		return eris.New("centre: geometry is not a point")
	}
	p.Lng, p.Lat = pt.X(), pt.Y()
	return nil
}

// Centre is the canonical, persisted form of a dataset record.
type Centre struct {
	ID         string    // stringified natural identifier; primary key
	LocID      string    // natural identifier (loc_id) used for lookups
	Location   Point     // always valid for stored centres
	Attributes RawRecord // passthrough fields, without "location"
	Distance   *float64  // meters from the query point; nearest queries only
}

// MarshalJSON flattens the passthrough attributes and overlays the typed
// fields on top of them.
func (c Centre) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Attributes)+3)
	for k, v := range c.Attributes {
		out[k] = v
	}

	id, err := json.Marshal(c.ID)
	if err != nil {
		return nil, err
	}
	out["id"] = id

	loc, err := c.Location.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out["location"] = loc

	if c.Distance != nil {
		d, err := json.Marshal(*c.Distance)
		if err != nil {
			return nil, err
		}
		out["distance"] = d
	}

	return json.Marshal(out)
}

// NearestQuery describes a proximity search.
type NearestQuery struct {
	Lat         float64
	Lng         float64
	MaxDistance float64 // meters
	Limit       int
}

// RejectReason classifies a soft per-record rejection.
type RejectReason string

// Reject reasons reported by Normalize.
const (
	MissingIdentifier   RejectReason = "MissingIdentifier"
	DuplicateIdentifier RejectReason = "DuplicateIdentifier"
	NoLocation          RejectReason = "NoLocation"
)

// Rejection records a raw record that was left out of the batch.
type Rejection struct {
	Index  int          `json:"index"` // position in the raw record list
	LocID  string       `json:"loc_id,omitempty"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// Batch is the output of one normalization pass.
type Batch struct {
	DatasetID  string
	Total      int
	Centres    []Centre
	Rejections []Rejection
}

// CountByReason tallies rejections per reason.
func (b *Batch) CountByReason() map[RejectReason]int {
	counts := make(map[RejectReason]int)
	for _, r := range b.Rejections {
		counts[r.Reason]++
	}
	return counts
}
