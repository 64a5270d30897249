package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"machinery-cloud/internal/httpapi"
	machines "machinery-cloud/internal/machines/domain"
	maintapp "machinery-cloud/internal/maintenance/application"
	maintenance "machinery-cloud/internal/maintenance/domain"
	"machinery-cloud/internal/maintenance/interfaces"
	"machinery-cloud/internal/observability/metrics"
)

// Error codes for maintenance conflicts.
const (
	codeEntryStateConflict = "entry_state_conflict"
	codeInsufficientData   = "insufficient_data"
)

// Clock provides time for the export footer.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Handler provides maintenance schedule HTTP endpoints.
type Handler struct {
	estimator *maintapp.Estimator
	clock     Clock
}

// NewHandler constructs a handler.
func NewHandler(estimator *maintapp.Estimator) (*Handler, error) {
	if estimator == nil {
		return nil, errors.New("maintenance handler: nil estimator")
	}
	return &Handler{estimator: estimator, clock: systemClock{}}, nil
}

// ServeHTTP handles /api/v1/maintenance and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/maintenance/schedule":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleSchedule(w, r)
		default:
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
		}
		return
	case r.URL.Path == "/api/v1/maintenance/schedule/export.xlsx",
		r.URL.Path == "/api/v1/maintenance/schedule/export.pdf":
		if r.Method != http.MethodGet {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExport(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/maintenance/schedule/"):
		h.handleEntryAction(w, r)
		return
	case r.URL.Path == "/api/v1/maintenance/recompute":
		if r.Method != http.MethodPost {
			httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
			return
		}
		h.handleRecompute(w, r)
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
	list, err := h.estimator.List(r.Context(), filter)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MachineID       string    `json:"machine_id"`
		Type            string    `json:"type"`
		ScheduledAt     time.Time `json:"scheduled_at"`
		DurationMinutes int       `json:"duration_minutes"`
		Components      []string  `json:"components"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, "invalid json body")
		return
	}
	entry, err := h.estimator.Schedule(r.Context(), req.MachineID, maintenance.EntryType(req.Type), req.ScheduledAt, time.Duration(req.DurationMinutes)*time.Minute, req.Components)
	if err != nil {
		if errors.Is(err, machines.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "machine not found")
			return
		}
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(entry)
}

func (h *Handler) handleEntryAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpapi.WriteError(w, http.StatusMethodNotAllowed, httpapi.CodeMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/maintenance/schedule/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
	var (
		entry *maintenance.Entry
		err   error
	)
	switch parts[1] {
	case "cancel":
		entry, err = h.estimator.Cancel(r.Context(), parts[0])
	case "complete":
		entry, err = h.estimator.Complete(r.Context(), parts[0])
	default:
		httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "unknown route")
		return
	}
	if err != nil {
		if errors.Is(err, maintenance.ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "entry not found")
			return
		}
		httpapi.WriteError(w, http.StatusConflict, codeEntryStateConflict, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entry)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		// Fleet-wide recompute runs detached so the response does not
		// wait on it and a client disconnect does not cancel it.
		ctx := context.WithoutCancel(r.Context())
		go func() {
			h.estimator.RecomputeAll(ctx)
		}()
		w.WriteHeader(http.StatusAccepted)
		return
	}
	estimate, err := h.estimator.Recompute(r.Context(), machineID)
	if err != nil {
		switch {
		case errors.Is(err, machines.ErrNotFound):
			httpapi.WriteError(w, http.StatusNotFound, httpapi.CodeNotFound, "machine not found")
		case errors.Is(err, maintapp.ErrNoTrend):
			httpapi.WriteError(w, http.StatusConflict, codeInsufficientData, "not enough data for an estimate")
		default:
			httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(estimate)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeBadRequest, err.Error())
		return
	}
	list, err := h.estimator.List(r.Context(), filter)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	now := h.clock.Now()
	start := time.Now()
	if strings.HasSuffix(r.URL.Path, ".pdf") {
		payload, err := interfaces.BuildSchedulePDF(list, now)
		if err != nil {
			metrics.ObserveScheduleExport("pdf", metrics.ResultError, time.Since(start))
			httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
			return
		}
		metrics.ObserveScheduleExport("pdf", metrics.ResultSuccess, time.Since(start))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="maintenance-schedule.pdf"`)
		_, _ = w.Write(payload)
		return
	}
	payload, err := interfaces.BuildScheduleXLSX(list, now)
	if err != nil {
		metrics.ObserveScheduleExport("xlsx", metrics.ResultError, time.Since(start))
		httpapi.WriteError(w, http.StatusInternalServerError, httpapi.CodeInternal, err.Error())
		return
	}
	metrics.ObserveScheduleExport("xlsx", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="maintenance-schedule.xlsx"`)
	_, _ = w.Write(payload)
}

func parseFilter(r *http.Request) (maintenance.Filter, error) {
	query := r.URL.Query()
	filter := maintenance.Filter{
		MachineID: query.Get("machine_id"),
		Priority:  maintenance.Priority(query.Get("priority")),
		Status:    maintenance.EntryStatus(query.Get("status")),
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return maintenance.Filter{}, errors.New("unknown priority")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return maintenance.Filter{}, errors.New("unknown status")
	}
	return filter, nil
}
