package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/familyhub/centres-api/internal/cache"
	"github.com/familyhub/centres-api/internal/centre"
	"github.com/familyhub/centres-api/pkg/geocode"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	deps Deps
}

func logger(r *http.Request) *zap.Logger {
	return zap.L().With(zap.String("request_id", RequestIDFrom(r.Context())))
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	res := map[string]string{"status": "ok", "spatial_index": "ready"}

	ready, err := h.deps.Centres.IndexReady(r.Context())
	switch {
	case err != nil:
		logger(r).Warn("health: index check failed", zap.Error(err))
		res["status"] = "degraded"
		res["spatial_index"] = "unknown"
	case !ready:
		res["status"] = "degraded"
		res["spatial_index"] = "missing"
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *handlers) listCentres(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Catalog.FetchCentres(r.Context())
	if err != nil {
		logger(r).Error("fetch centres failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (h *handlers) centreByLocID(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Centres.FindByID(r.Context(), chi.URLParam(r, "locId"))
	if errors.Is(err, centre.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Center not found")
		return
	}
	if err != nil {
		logger(r).Error("find centre failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (h *handlers) refreshCache(w http.ResponseWriter, r *http.Request) {
	payload, err := h.deps.Cache.Refresh(r.Context())
	if err != nil {
		logger(r).Error("refresh cache failed", zap.Error(err))
		var fetchErr *cache.FetchError
		if errors.As(err, &fetchErr) {
			writeError(w, r, http.StatusInternalServerError, "Error fetching data from CKAN: "+fetchErr.Err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "Error storing cached data")
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}{"Cache refreshed successfully", payload})
}

func (h *handlers) cachedCentres(w http.ResponseWriter, r *http.Request) {
	payload, err := h.deps.Cache.Read(r.Context())
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "No cached data available. Please refresh the cache.")
		return
	}
	if err != nil {
		logger(r).Error("read cache failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "Error reading cached data")
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Data json.RawMessage `json:"data"`
	}{payload})
}

// nearRequest is the POST /api/centres/near body. Pointers distinguish
// absent fields from zero values.
type nearRequest struct {
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	MaxDistance *float64 `json:"max_distance"`
	Limit       *int     `json:"limit"`
}

func (h *handlers) nearestCentres(w http.ResponseWriter, r *http.Request) {
	var req nearRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, r, http.StatusBadRequest, "lat and lng are required")
		return
	}

	q := centre.NearestQuery{Lat: *req.Lat, Lng: *req.Lng}
	if req.MaxDistance != nil {
		q.MaxDistance = *req.MaxDistance
	}
	if req.Limit != nil {
		if *req.Limit < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must not be negative")
			return
		}
		q.Limit = *req.Limit
	}

	centres, err := h.deps.Centres.FindNearest(r.Context(), q)
	if err != nil {
		logger(r).Error("nearest centres failed",
			zap.Float64("lat", q.Lat),
			zap.Float64("lng", q.Lng),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, centres)
}

type geocodeRequest struct {
	Address string `json:"address"`
}

func (h *handlers) geocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	result, err := h.deps.Geocoder.Geocode(r.Context(), req.Address)
	if err != nil {
		var failed *geocode.FailedError
		switch {
		case errors.Is(err, geocode.ErrNotConfigured):
			writeError(w, r, http.StatusInternalServerError, "Geocoding API key not configured")
		case errors.As(err, &failed):
			writeError(w, r, http.StatusBadRequest, "Geocoding error: "+failed.Message)
		default:
			logger(r).Error("geocode failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "Error calling geocoding service")
		}
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
