package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"machinery-cloud/internal/httpapi"
	machines "machinery-cloud/internal/machines/domain"
	"machinery-cloud/internal/observability/metrics"
	optapp "machinery-cloud/internal/optimization/application"
	optimization "machinery-cloud/internal/optimization/domain"
)

const codeNotApplicable = "scenario_not_applicable"

// Handler provides optimization ranking endpoints.
type Handler struct {
	ranker *optapp.Ranker
}

// NewHandler constructs a handler.
func NewHandler(ranker *optapp.Ranker) (*Handler, error) {
	if ranker == nil {
		return nil, errors.New("optimization handler: nil ranker")
	}
	return &Handler{ranker: ranker}, nil
}

// ServeHTTP handles /api/v1/optimization and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/optimization/ranking":
		if r.Method != http.MethodGet {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleRanking(w, r)
		return
	case "/api/v1/optimization/apply":
		if r.Method != http.MethodPost {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleApply(w, r)
		return
	case "/api/v1/optimization/acceptances":
		if r.Method != http.MethodGet {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.ranker.Acceptances())
		return
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ranking, err := h.ranker.Rank(r.Context())
	if err != nil {
		metrics.ObserveRanking(metrics.ResultError, time.Since(start))
		if errors.Is(err, optapp.ErrDeadlineExceeded) {
			httpapi.WriteError(w, http.StatusGatewayTimeout, httpapi.CodeDeadlineExceeded, "ranking timed out")
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	metrics.ObserveRanking(metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ranking)
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MachineID  string `json:"machine_id"`
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	acceptance, err := h.ranker.ApplyScenario(r.Context(), req.MachineID, req.ScenarioID)
	if err != nil {
		switch {
		case errors.Is(err, machines.ErrNotFound):
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "machine not found")
		case errors.Is(err, optimization.ErrScenarioNotFound):
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "scenario not found")
		case errors.Is(err, optimization.ErrNotApplicable):
			httpapi.WriteError(w, http.StatusConflict, codeNotApplicable, err.Error())
		default:
			httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(acceptance)
}
