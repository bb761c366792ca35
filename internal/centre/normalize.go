package centre

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	fieldLocID    = "loc_id"
	fieldGeometry = "geometry"
	fieldLat      = "lat"
	fieldLng      = "lng"
	fieldLocation = "location"
)

// Normalize converts a raw dataset fetch payload into canonical centres.
//
// The payload must have the shape {"data": {"<dataset-id>": {"records": [...]}}};
// only the first dataset (in document order) is read. Records are processed in
// order and rejected softly when they lack an identifier, repeat one already
// seen, or carry no usable location. The first occurrence of an identifier
// wins.
func Normalize(payload []byte) (*Batch, error) {
	datasetID, records, err := extractRecords(payload)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		DatasetID: datasetID,
		Total:     len(records),
		Centres:   make([]Centre, 0, len(records)),
	}
	seen := make(map[string]struct{}, len(records))

	for i, raw := range records {
		var rec RawRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
			batch.Rejections = append(batch.Rejections, Rejection{
				Index: i, Reason: MissingIdentifier, Detail: "record is not an object",
			})
			continue
		}

		locID, ok := identifier(rec[fieldLocID])
		if !ok {
			batch.Rejections = append(batch.Rejections, Rejection{
				Index: i, Reason: MissingIdentifier, Detail: describeName(rec),
			})
			continue
		}

		if _, dup := seen[locID]; dup {
			batch.Rejections = append(batch.Rejections, Rejection{
				Index: i, LocID: locID, Reason: DuplicateIdentifier,
			})
			continue
		}
		seen[locID] = struct{}{}

		loc, detail, ok := resolveLocation(rec)
		if !ok {
			batch.Rejections = append(batch.Rejections, Rejection{
				Index: i, LocID: locID, Reason: NoLocation, Detail: detail,
			})
			continue
		}

		attrs := make(RawRecord, len(rec))
		for k, v := range rec {
			if k == fieldLocation {
				continue
			}
			attrs[k] = v
		}

		batch.Centres = append(batch.Centres, Centre{
			ID:         locID,
			LocID:      locID,
			Location:   loc,
			Attributes: attrs,
		})
	}

	return batch, nil
}

// extractRecords walks data -> first dataset key -> records.
func extractRecords(payload []byte) (string, []json.RawMessage, error) {
	var top struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &top); err != nil {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "decode payload: %v", err)
	}
	if isNull(top.Data) {
		return "", nil, eris.Wrap(ErrMalformedPayload, "missing data container")
	}

	datasetID, dataset, err := firstMember(top.Data)
	if err != nil {
		return "", nil, err
	}

	var ds struct {
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(dataset, &ds); err != nil {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "dataset %s is not an object", datasetID)
	}
	if isNull(ds.Records) {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "dataset %s has no records", datasetID)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(ds.Records, &records); err != nil {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "dataset %s records is not a list", datasetID)
	}
	return datasetID, records, nil
}

// firstMember returns the first key/value pair of a JSON object in document
// order.
func firstMember(obj json.RawMessage) (string, json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	tok, err := dec.Token()
	if err != nil {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "read data container: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", nil, eris.Wrap(ErrMalformedPayload, "data container is not an object")
	}
	if !dec.More() {
		return "", nil, eris.Wrap(ErrMalformedPayload, "data container has no datasets")
	}

	keyTok, err := dec.Token()
	if err != nil {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "read dataset key: %v", err)
	}
	key, _ := keyTok.(string)

	var val json.RawMessage
	if err := dec.Decode(&val); err != nil {
		return "", nil, eris.Wrapf(ErrMalformedPayload, "read dataset %s: %v", key, err)
	}
	return key, val, nil
}

// identifier stringifies a loc_id value. Strings are trimmed, numbers keep
// their literal text; null, empty, and non-scalar values are missing.
func identifier(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}

// resolveLocation prefers the GeoJSON geometry field and falls back to the
// separate lat/lng fields. The detail string explains a failure.
func resolveLocation(rec RawRecord) (Point, string, bool) {
	var reasons []string

	if raw, ok := rec[fieldGeometry]; ok && !isNull(raw) {
		p, err := parseGeometry(raw)
		if err == nil {
			return p, "", true
		}
		reasons = append(reasons, err.Error())
	}

	latRaw, hasLat := rec[fieldLat]
	lngRaw, hasLng := rec[fieldLng]
	if hasLat && hasLng && !isNull(latRaw) && !isNull(lngRaw) {
		lat, latErr := toFloat(latRaw)
		lng, lngErr := toFloat(lngRaw)
		switch {
		case latErr != nil:
			reasons = append(reasons, "lat: "+latErr.Error())
		case lngErr != nil:
			reasons = append(reasons, "lng: "+lngErr.Error())
		default:
			p := Point{Lng: lng, Lat: lat}
			if p.Valid() {
				return p, "", true
			}
			reasons = append(reasons, fmt.Sprintf("lat/lng out of range (%g, %g)", lat, lng))
		}
	}

	if len(reasons) == 0 {
		return Point{}, "no geometry or lat/lng fields", false
	}
	return Point{}, strings.Join(reasons, "; "), false
}

// parseGeometry accepts a GeoJSON Point given either as a JSON-encoded string
// or as an embedded object.
func parseGeometry(raw json.RawMessage) (Point, error) {
	raw = bytes.TrimSpace(raw)
	doc := []byte(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Point{}, eris.Wrap(err, "geometry: decode string")
		}
		doc = []byte(s)
	}

	var head struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return Point{}, eris.Wrap(err, "geometry: parse")
	}
	if head.Type != "Point" || isNull(head.Coordinates) {
		return Point{}, eris.Errorf("geometry: not a point (type %q)", head.Type)
	}

	var p Point
	if err := p.UnmarshalJSON(doc); err != nil {
		return Point{}, err
	}
	if !p.Valid() {
		return Point{}, eris.Errorf("geometry: coordinates out of range (%g, %g)", p.Lng, p.Lat)
	}
	return p, nil
}

// toFloat converts a JSON number or numeric string to float64.
func toFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, eris.Errorf("not a number: %q", s)
		}
		return f, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, eris.Errorf("not a number: %s", raw)
	}
	return f, nil
}

// describeName returns the program name of a record for diagnostics.
func describeName(rec RawRecord) string {
	var name string
	if raw, ok := rec["program_name"]; ok {
		_ = json.Unmarshal(raw, &name)
	}
	if name == "" {
		return "no loc_id"
	}
	return "no loc_id: " + name
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
