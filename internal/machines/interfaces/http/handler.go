package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	analytics "machinery-cloud/internal/analytics/domain"
	"machinery-cloud/internal/httpapi"
	machineapp "machinery-cloud/internal/machines/application"
	machines "machinery-cloud/internal/machines/domain"
	maintapp "machinery-cloud/internal/maintenance/application"
)

// Error codes for machine conflicts.
const (
	codeDecommissioned   = "machine_decommissioned"
	codeInsufficientData = "insufficient_data"
)

// Handler provides machine registry HTTP endpoints, including the
// per-machine metrics and prediction views.
type Handler struct {
	service   *machineapp.Service
	agg       *analytics.Aggregator
	estimator *maintapp.Estimator
}

// NewHandler constructs a handler. The aggregator and estimator are
// optional; without them the metrics and prediction routes report 404.
func NewHandler(service *machineapp.Service, agg *analytics.Aggregator, estimator *maintapp.Estimator) (*Handler, error) {
	if service == nil {
		return nil, errors.New("machines handler: nil service")
	}
	return &Handler{service: service, agg: agg, estimator: estimator}, nil
}

// ServeHTTP handles /api/v1/machines and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/machines":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleRegister(w, r)
		default:
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
		}
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/machines/"):
		h.handleMachine(w, r)
		return
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
}

func (h *Handler) handleMachine(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/machines/")
	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		if r.Method != http.MethodGet {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleGet(w, r, parts[0])
	case 2:
		id, action := parts[0], parts[1]
		switch action {
		case "status":
			if r.Method != http.MethodPost {
				httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
				return
			}
			h.handleStatus(w, r, id)
		case "retire":
			if r.Method != http.MethodPost {
				httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
				return
			}
			h.handleRetire(w, r, id)
		case "metrics":
			if r.Method != http.MethodGet {
				httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
				return
			}
			h.handleMetrics(w, r, id)
		case "prediction":
			if r.Method != http.MethodGet {
				httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
				return
			}
			h.handlePrediction(w, r, id)
		default:
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		}
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	machine, err := h.service.Register(r.Context(), req.ID, req.Name, machines.Type(req.Type))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(machine)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	machine, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondMachineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(machine)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	machine, err := h.service.OverrideStatus(r.Context(), id, machines.Status(req.Status))
	if err != nil {
		respondMachineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(machine)
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request, id string) {
	machine, err := h.service.Retire(r.Context(), id)
	if err != nil {
		respondMachineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(machine)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request, id string) {
	if h.agg == nil {
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "metrics unavailable")
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		respondMachineError(w, err)
		return
	}
	type parameterMetrics struct {
		Parameter string                           `json:"parameter"`
		Windows   map[string]analytics.RollingStat `json:"windows"`
	}
	view := struct {
		MachineID  string             `json:"machine_id"`
		Parameters []parameterMetrics `json:"parameters"`
	}{MachineID: id}
	for _, parameter := range h.agg.Parameters(id) {
		stats, err := h.agg.Stats(id, parameter)
		if err != nil {
			continue
		}
		view.Parameters = append(view.Parameters, parameterMetrics{
			Parameter: parameter,
			Windows:   stats,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (h *Handler) handlePrediction(w http.ResponseWriter, r *http.Request, id string) {
	if h.estimator == nil {
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "prediction unavailable")
		return
	}
	machine, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondMachineError(w, err)
		return
	}
	estimate, err := h.estimator.EstimateRUL(r.Context(), *machine)
	if err != nil {
		if errors.Is(err, maintapp.ErrNoTrend) || errors.Is(err, analytics.ErrInsufficientData) {
			httpapi.WriteError(w, http.StatusConflict, codeInsufficientData, "not enough data for a prediction")
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(estimate)
}

func respondMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, machines.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "machine not found")
	case errors.Is(err, machines.ErrDecommissioned):
		httpapi.WriteError(w, http.StatusConflict, codeDecommissioned, err.Error())
	default:
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
	}
}
