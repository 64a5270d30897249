package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"machinery-cloud/internal/httpapi"
	"machinery-cloud/internal/observability/metrics"
	"machinery-cloud/internal/query"
)

// Handler provides cross-package KPI endpoints.
type Handler struct {
	service *query.Service
}

// NewHandler constructs a handler.
func NewHandler(service *query.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("query handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/analytics and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
		return
	}
	switch r.URL.Path {
	case "/api/v1/analytics/snapshot":
		h.handleSnapshot(w, r)
		return
	case "/api/v1/analytics/kpis":
		h.handleMachineKPIs(w, r)
		return
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snapshot, err := h.service.KPISnapshot(r.Context())
	if err != nil {
		metrics.ObserveSnapshot(metrics.ResultError, time.Since(start))
		if errors.Is(err, query.ErrDeadlineExceeded) {
			httpapi.WriteError(w, http.StatusGatewayTimeout, httpapi.CodeDeadlineExceeded, "snapshot timed out")
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	metrics.ObserveSnapshot(metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

func (h *Handler) handleMachineKPIs(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.MachineKPIs(r.Context())
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}
