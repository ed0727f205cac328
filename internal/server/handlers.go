package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch/riskmap-service/internal/domain"
)

type handler struct {
	deps Deps
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.deps.Ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleHeatmap serves the latest snapshot. Pass zero tells the client
// aggregation has not yet run, which is different from an empty result.
func (h *handler) handleHeatmap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Store.Heatmap())
}

type locationResponse struct {
	Location domain.NamedLocation `json:"location"`
	Advisory string               `json:"advisory,omitempty"`
}

func (h *handler) handleLocation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, locationResponse{
		Location: h.deps.Store.Location(),
		Advisory: h.deps.Store.Advisory(),
	})
}

// handleLocationRefresh kicks off an opportunistic resolution pass and
// returns immediately; the client observes progress through the
// location endpoint or the live feed. The pass runs detached from the
// request context so a dropped connection cannot abort it mid-chain.
func (h *handler) handleLocationRefresh(w http.ResponseWriter, _ *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := h.deps.Resolver.Resolve(ctx); err != nil {
			h.deps.Logger.Warn("background resolution failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resolving"})
}

func (h *handler) handleMapConfig(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.MapConfig.Get(r.Context(), coord))
}

type submitReportRequest struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Description string   `json:"description"`
	Verified    bool     `json:"verified"`
	Upvotes     int      `json:"upvotes"`
}

// handleSubmitReport accepts a community report, persists it, and feeds
// it into aggregation. Reports without a coordinate are accepted but
// never produce a risk point.
func (h *handler) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req submitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "latitude and longitude must be provided together"})
		return
	}
	if req.Upvotes < 0 {
		req.Upvotes = 0
	}

	rep := domain.CommunityReport{
		ID:          uuid.NewString(),
		Description: req.Description,
		Verified:    req.Verified,
		Upvotes:     req.Upvotes,
		SubmittedAt: h.deps.Clock.Now().UTC(),
	}
	if req.Latitude != nil && req.Longitude != nil {
		rep.Coordinate = &domain.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	if h.deps.Repo != nil {
		if err := h.deps.Repo.Save(r.Context(), rep); err != nil {
			h.deps.Logger.Error("persist report failed", "error", err, "report_id", rep.ID)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store report"})
			return
		}
	}

	h.deps.Reports.Append(rep)
	h.deps.Metrics.ReportsSubmitted.Inc()

	writeJSON(w, http.StatusCreated, rep)
}

// parseCoordParams reads optional lat/lng query parameters. Both must
// be present for a coordinate to exist; one alone is a client error.
func parseCoordParams(r *http.Request) (*domain.Coordinate, error) {
	latStr := r.URL.Query().Get("lat")
	lngStr := r.URL.Query().Get("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, errParams
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, errParams
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, errParams
	}
	return &domain.Coordinate{Latitude: lat, Longitude: lng}, nil
}

var errParams = &paramError{"lat and lng must be valid floats provided together"}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }
