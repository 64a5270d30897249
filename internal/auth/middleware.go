package auth

import (
	"net/http"
	"strings"

	"machinery-cloud/internal/httpapi"
)

// Middleware authenticates bearer tokens and enforces the route policy.
type Middleware struct {
	verifier *Verifier
	policy   Policy
}

// NewMiddleware constructs an auth middleware over a shared HMAC secret.
// With an empty secret every non-exempt request is rejected.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	verifier, err := NewVerifier(secret)
	if err != nil {
		verifier = nil
	}
	return &Middleware{verifier: verifier, policy: policy}
}

// Wrap applies authentication and role checks to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if m.verifier == nil {
			httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "authentication unavailable")
			return
		}
		identity, err := m.verifier.Verify(extractBearer(r))
		if err != nil {
			httpapi.WriteError(w, http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid or missing token")
			return
		}
		if !RoleAtLeast(identity.Role, required) {
			httpapi.WriteError(w, http.StatusForbidden, httpapi.CodeForbidden, "role "+string(identity.Role)+" may not "+r.Method+" "+r.URL.Path)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
