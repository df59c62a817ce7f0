package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Middleware guards the vibration API. It authenticates the caller from an
// HS256 bearer token and checks the caller's role against Policy before the
// request reaches the readings, entry, slideshow or settings handlers.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware builds a Middleware for tokens signed with secret.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap puts the caller's Identity on the request context. Exempt paths and
// routes the policy does not cover pass through untouched.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, guarded := m.Policy.RequiredRole(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.authenticate(r)
		if err == nil && !RoleAtLeast(identity.Role, required) {
			err = ErrForbidden
		}
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	token := bearerToken(r)
	if token == "" {
		// The change stream is opened with EventSource, which cannot set headers.
		token = r.URL.Query().Get("access_token")
	}
	claims, err := ParseJWT(token, m.Secret)
	if err != nil {
		return Identity{}, err
	}
	role, _ := ParseRole(claims.Role)
	return Identity{Subject: claims.Subject, Name: claims.Name, Role: role}, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrForbidden) {
		http.Error(w, "role not permitted for this vibration route", http.StatusForbidden)
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="vibration"`)
	http.Error(w, "valid bearer token required", http.StatusUnauthorized)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
