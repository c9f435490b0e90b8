package auth

import (
	"context"
	"net/http"
	"strings"

	pkghttp "github.com/oryxcrm/branchgate/pkg/http"
)

type contextKey string

const claimsContextKey contextKey = "session_claims"

// NewContext returns ctx with the session claims attached
func NewContext(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetClaimsFromContext returns the session claims attached by RequireSession,
// or nil when the request was not authenticated.
func GetClaimsFromContext(r *http.Request) *SessionClaims {
	claims, _ := r.Context().Value(claimsContextKey).(*SessionClaims)
	return claims
}

// RequireSession validates the Bearer session token and attaches its claims
// to the request context.
func RequireSession(issuer *SessionIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				pkghttp.WriteUnauthorized(w, "missing session token")
				return
			}

			claims, err := issuer.Validate(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid session token")
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), claims)))
		})
	}
}

// RequireSuperuser gates administrator-only operations such as QR Master
// rotation. Must run after RequireSession.
func RequireSuperuser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "missing session token")
				return
			}
			if !claims.Superuser {
				pkghttp.WriteForbidden(w, "superuser required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
