package http

import (
	"context"
	"net/http"

	"feeledger/internal/auth"
	"feeledger/internal/core"
	"feeledger/internal/log"
)

// requireAuth rejects requests without a valid, unrevoked access token and
// stores the caller's claims on the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, core.Unauthorizedf("Authentication required"))
			return
		}
		claims, err := s.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r, claims)))
	})
}

// optionalAuth authenticates the caller when a token is presented. A bad
// token is still rejected.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := s.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r, claims)))
	})
}

func withCaller(r *http.Request, claims *auth.Claims) context.Context {
	ctx := auth.WithClaims(r.Context(), claims)
	logger := log.FromContext(ctx).With(log.FieldUserID, claims.UserID, log.FieldRole, string(claims.Role))
	return context.WithValue(ctx, log.LoggerContextKey, logger)
}

// requireRole lets the request through only when the caller has one of roles.
func requireRole(roles ...core.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFrom(r.Context())
			if !ok {
				writeError(w, r, core.Unauthorizedf("Authentication required"))
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, core.Forbiddenf("Insufficient permissions"))
		})
	}
}
