package server

import (
	"context"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the verified access token claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the access token claims stored by RequireBearerToken.
func ClaimsFromContext(ctx context.Context) (jwtlib.MapClaims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(jwtlib.MapClaims)
	return claims, ok
}

// RequireBearerToken is middleware that validates a Bearer access token issued by this
// server and stores its claims in the request context.
func (s *Server) RequireBearerToken() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
				writeJSONError(w, "invalid_token", "Missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := s.deps.Inspector.Inspect(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo", error="invalid_token"`)
				writeJSONError(w, "invalid_token", "The access token is not valid", http.StatusUnauthorized)
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyClaims, claims)))
		}
	}
}

// bearerToken reads the access token from the Authorization header, or from the
// access_token form field of a POST body.
func bearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if r.Method == http.MethodPost {
		if token := r.PostFormValue("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}
