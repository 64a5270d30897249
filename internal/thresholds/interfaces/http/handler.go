package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"machinery-cloud/internal/httpapi"
	"machinery-cloud/internal/observability/metrics"
	"machinery-cloud/internal/thresholds"
)

const codeInvalidConfig = "invalid_config"

// Handler provides threshold configuration endpoints.
type Handler struct {
	registry *thresholds.Registry
}

// NewHandler constructs a handler.
func NewHandler(registry *thresholds.Registry) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("thresholds handler: nil registry")
	}
	return &Handler{registry: registry}, nil
}

// ServeHTTP handles /api/v1/config/thresholds.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/config/thresholds" {
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPut:
		h.handlePut(w, r)
	default:
		httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.registry.Current())
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseVersion int64             `json:"base_version"`
		Config      thresholds.Config `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	version, err := h.registry.Publish(req.Config, req.BaseVersion)
	conflict := false
	if err != nil {
		if !errors.Is(err, thresholds.ErrVersionConflict) {
			metrics.IncThresholdPublish("rejected")
			httpapi.WriteError(w, http.StatusBadRequest, codeInvalidConfig, err.Error())
			return
		}
		// Stale base still wins; the conflict is reported, not enforced.
		conflict = true
	}
	if conflict {
		metrics.IncThresholdPublish("conflict")
	} else {
		metrics.IncThresholdPublish("published")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Version  int64 `json:"version"`
		Conflict bool  `json:"conflict"`
	}{Version: version, Conflict: conflict})
}
