package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	anomalyapp "machinery-cloud/internal/anomalies/application"
	anomalies "machinery-cloud/internal/anomalies/domain"
	"machinery-cloud/internal/httpapi"
)

const timeLayout = time.RFC3339

const codeInvalidTransition = "invalid_transition"

// Handler provides anomaly listing and lifecycle endpoints.
type Handler struct {
	classifier *anomalyapp.Classifier
}

// NewHandler constructs a handler.
func NewHandler(classifier *anomalyapp.Classifier) (*Handler, error) {
	if classifier == nil {
		return nil, errors.New("anomalies handler: nil classifier")
	}
	return &Handler{classifier: classifier}, nil
}

// ServeHTTP handles /api/v1/anomalies and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/anomalies":
		if r.Method != http.MethodGet {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleList(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/anomalies/"):
		if r.Method != http.MethodPatch {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/anomalies/")
		if id == "" || strings.Contains(id, "/") {
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
			return
		}
		h.handleTransition(w, r, id)
		return
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		return
	}
	list, err := h.classifier.List(r.Context(), filter)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	record, err := h.classifier.Transition(r.Context(), id, anomalies.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, anomalies.ErrNotFound):
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "anomaly not found")
		case errors.Is(err, anomalies.ErrInvalidTransition):
			httpapi.WriteError(w, http.StatusConflict, codeInvalidTransition, err.Error())
		default:
			httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func parseFilter(r *http.Request) (anomalies.Filter, error) {
	query := r.URL.Query()
	filter := anomalies.Filter{
		Status:    anomalies.Status(query.Get("status")),
		MachineID: query.Get("machine_id"),
		Search:    query.Get("search"),
	}
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(timeLayout, raw)
		if err != nil {
			return anomalies.Filter{}, errors.New("from must be RFC3339")
		}
		filter.From = parsed.UTC()
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(timeLayout, raw)
		if err != nil {
			return anomalies.Filter{}, errors.New("to must be RFC3339")
		}
		filter.To = parsed.UTC()
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return anomalies.Filter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return anomalies.Filter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
