package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"machinery-cloud/internal/httpapi"
)

var testSecret = []byte("test-secret")

func mustToken(t *testing.T, role string, expiry time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "test-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestMiddleware() *Middleware {
	policy := NewDefaultPolicy([]string{"/healthz"}, []string{"/metrics"})
	return NewMiddleware(testSecret, policy)
}

func doRequest(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	newTestMiddleware().Wrap(testHandler()).ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	rec := doRequest(t, http.MethodGet, "/api/v1/machines", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	token := mustToken(t, "viewer", -time.Hour)
	rec := doRequest(t, http.MethodGet, "/api/v1/machines", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareExemptPaths(t *testing.T) {
	if rec := doRequest(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected exempt /healthz to pass, got %d", rec.Code)
	}
	if rec := doRequest(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected exempt /metrics to pass, got %d", rec.Code)
	}
}

func TestMiddlewareViewerCannotWrite(t *testing.T) {
	token := mustToken(t, "viewer", time.Hour)
	rec := doRequest(t, http.MethodPost, "/api/v1/readings", token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareViewerCanRead(t *testing.T) {
	token := mustToken(t, "viewer", time.Hour)
	rec := doRequest(t, http.MethodGet, "/api/v1/machines", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareOperatorCanPatchAnomalies(t *testing.T) {
	token := mustToken(t, "operator", time.Hour)
	rec := doRequest(t, http.MethodPatch, "/api/v1/anomalies/an-123", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareThresholdWritesNeedAdmin(t *testing.T) {
	operator := mustToken(t, "operator", time.Hour)
	if rec := doRequest(t, http.MethodPut, "/api/v1/config/thresholds", operator); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}
	admin := mustToken(t, "admin", time.Hour)
	if rec := doRequest(t, http.MethodPut, "/api/v1/config/thresholds", admin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	viewer := mustToken(t, "viewer", time.Hour)
	if rec := doRequest(t, http.MethodGet, "/api/v1/config/thresholds", viewer); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for viewer read, got %d", rec.Code)
	}
}

func TestMiddlewareRetireNeedsAdmin(t *testing.T) {
	operator := mustToken(t, "operator", time.Hour)
	if rec := doRequest(t, http.MethodPost, "/api/v1/machines/m-1/retire", operator); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}
	admin := mustToken(t, "admin", time.Hour)
	if rec := doRequest(t, http.MethodPost, "/api/v1/machines/m-1/retire", admin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsUnknownRole(t *testing.T) {
	token := mustToken(t, "superuser", time.Hour)
	rec := doRequest(t, http.MethodGet, "/api/v1/machines", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareWritesErrorEnvelope(t *testing.T) {
	rec := doRequest(t, http.MethodGet, "/api/v1/machines", "")
	var body httpapi.Error
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 401 body: %v", err)
	}
	if body.Code != httpapi.CodeUnauthorized || body.Message == "" {
		t.Fatalf("expected unauthorized envelope, got %+v", body)
	}

	viewer := mustToken(t, "viewer", time.Hour)
	rec = doRequest(t, http.MethodPost, "/api/v1/readings", viewer)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 403 body: %v", err)
	}
	if body.Code != httpapi.CodeForbidden {
		t.Fatalf("expected forbidden envelope, got %+v", body)
	}
}

func TestNormalizeRoleIsCaseInsensitive(t *testing.T) {
	role, ok := NormalizeRole(" Admin ")
	if !ok || role != RoleAdmin {
		t.Fatalf("expected admin, got %q (ok=%v)", role, ok)
	}
	if _, ok := NormalizeRole("superuser"); ok {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestVerifierReturnsIdentity(t *testing.T) {
	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	identity, err := verifier.Verify(mustToken(t, "Operator", time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Role != RoleOperator || identity.Subject != "test-user" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if _, err := verifier.Verify(mustToken(t, "superuser", time.Hour)); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRoleAtLeast(t *testing.T) {
	cases := []struct {
		have Role
		need Role
		want bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleOperator, false},
		{RoleOperator, RoleViewer, true},
		{RoleOperator, RoleAdmin, false},
		{RoleAdmin, RoleOperator, true},
		{RoleAdmin, RoleAdmin, true},
	}
	for _, tc := range cases {
		if got := RoleAtLeast(tc.have, tc.need); got != tc.want {
			t.Fatalf("RoleAtLeast(%s, %s) = %v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
}
