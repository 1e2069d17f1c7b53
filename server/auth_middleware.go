package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-bridge/token"
)

type contextKey string

const accessClaimsKey contextKey = "access_claims"

// AccessClaimsFromContext returns the verified access-token claims attached
// by RequireAuth, or nil when the request was not authenticated.
func AccessClaimsFromContext(ctx context.Context) *token.AccessTokenClaims {
	claims, _ := ctx.Value(accessClaimsKey).(*token.AccessTokenClaims)
	return claims
}

// RequireAuth guards a route behind a valid bearer access token. Downstream
// features read only the resulting claims; they never see provider tokens.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		claims, err := s.inspector.Introspect(rawToken)
		if err != nil || !claims.Active || !claims.AppAccess {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid access token"})
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), accessClaimsKey, claims)))
	}
}

// RequireAdmin additionally demands the admin flag on the access token.
func (s *Server) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := AccessClaimsFromContext(r.Context())
		if claims == nil || !claims.AdminAccess {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin access required"})
			return
		}
		next(w, r)
	})
}
