package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"machinery-cloud/internal/httpapi"
	readingapp "machinery-cloud/internal/readings/application"
	readings "machinery-cloud/internal/readings/domain"
)

const timeLayout = time.RFC3339

// Handler provides reading ingestion and query endpoints.
type Handler struct {
	service *readingapp.IngestService
}

// NewHandler constructs a handler.
func NewHandler(service *readingapp.IngestService) (*Handler, error) {
	if service == nil {
		return nil, errors.New("readings handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/readings and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/readings":
		switch r.Method {
		case http.MethodPost:
			h.handleIngest(w, r)
		case http.MethodGet:
			h.handleQuery(w, r)
		default:
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
		}
		return
	case "/api/v1/readings/batch":
		if r.Method != http.MethodPost {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleBatch(w, r)
		return
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var reading readings.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	if err := h.service.Ingest(r.Context(), reading); err != nil {
		writeIngestError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var batch []readings.Reading
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	results := h.service.IngestBatch(r.Context(), batch)
	type itemResult struct {
		Index int    `json:"index"`
		Error string `json:"error,omitempty"`
	}
	response := struct {
		Accepted int          `json:"accepted"`
		Rejected []itemResult `json:"rejected,omitempty"`
	}{}
	for i, err := range results {
		if err == nil {
			response.Accepted++
			continue
		}
		response.Rejected = append(response.Rejected, itemResult{Index: i, Error: err.Error()})
	}
	status := http.StatusCreated
	if response.Accepted == 0 && len(batch) > 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	parameter := r.URL.Query().Get("parameter")
	if machineID == "" || parameter == "" {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "machine_id and parameter are required")
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		return
	}
	if !to.After(from) {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "to must be after from")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "limit must be a non-negative integer")
			return
		}
	}
	list, err := h.service.Query(r.Context(), machineID, parameter, from, to, limit)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

// Error codes for ingest rejections.
const (
	codeInvalidReading = "invalid_reading"
	codeOutOfOrder     = "out_of_order"
)

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, readings.ErrOutOfOrder):
		httpapi.WriteError(w, http.StatusBadRequest, codeOutOfOrder, err.Error())
	case errors.Is(err, readings.ErrInvalidReading):
		httpapi.WriteError(w, http.StatusBadRequest, codeInvalidReading, err.Error())
	default:
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
	}
}
