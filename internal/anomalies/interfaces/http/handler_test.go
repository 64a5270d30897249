package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	anomalyapp "machinery-cloud/internal/anomalies/application"
	anomalies "machinery-cloud/internal/anomalies/domain"
	"machinery-cloud/internal/anomalies/infrastructure/memory"
	"machinery-cloud/internal/httpapi"
	"machinery-cloud/internal/thresholds"
)

func newTestHandler(t *testing.T) (*Handler, *memory.AnomalyRepository) {
	t.Helper()
	repo := memory.NewAnomalyRepository()
	registry, err := thresholds.NewRegistry(thresholds.DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	classifier, err := anomalyapp.NewClassifier(repo, registry)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	handler, err := NewHandler(classifier)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, repo
}

func seedRecord(t *testing.T, repo *memory.AnomalyRepository, id, machineID string, status anomalies.Status) {
	t.Helper()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rec := anomalies.Record{
		ID:        id,
		MachineID: machineID,
		Parameter: "temperature",
		Observed:  85.2,
		Expected:  70,
		Score:     1,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == anomalies.StatusResolved {
		rec.ResolvedAt = now
	}
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("seed record %s: %v", id, err)
	}
}

func TestHandlerListFiltersByMachine(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedRecord(t, repo, "an-1", "m-1", anomalies.StatusOpen)
	seedRecord(t, repo, "an-2", "m-2", anomalies.StatusOpen)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?machine_id=m-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []anomalies.Record
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "an-1" {
		t.Fatalf("expected only an-1, got %+v", list)
	}
}

func TestHandlerListRejectsBadTime(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?from=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerTransition(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedRecord(t, repo, "an-1", "m-1", anomalies.StatusOpen)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/anomalies/an-1", strings.NewReader(`{"status":"investigating"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var record anomalies.Record
	if err := json.NewDecoder(rec.Body).Decode(&record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Status != anomalies.StatusInvestigating {
		t.Fatalf("expected investigating, got %s", record.Status)
	}
}

func TestHandlerTransitionConflict(t *testing.T) {
	handler, repo := newTestHandler(t)
	seedRecord(t, repo, "an-1", "m-1", anomalies.StatusResolved)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/anomalies/an-1", strings.NewReader(`{"status":"open"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body httpapi.Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != codeInvalidTransition || body.Message == "" {
		t.Fatalf("expected invalid_transition envelope, got %+v", body)
	}
}

func TestHandlerTransitionNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/anomalies/an-missing", strings.NewReader(`{"status":"resolved"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body httpapi.Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != httpapi.CodeNotFound {
		t.Fatalf("expected not_found envelope, got %+v", body)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/anomalies", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	var body httpapi.Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != httpapi.CodeMethodNotAllowed {
		t.Fatalf("expected method_not_allowed envelope, got %+v", body)
	}
}
