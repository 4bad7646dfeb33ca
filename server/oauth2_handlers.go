package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-token-server/clientauth"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/token/jwt"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
)

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.deps.Keys.JWKS()
		if err != nil {
			log.Err(err).Msg("failed to build JWKS")
			writeJSONError(w, string(oauthmodel.ServerError), oauthmodel.DescServerError, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Token exchanges credentials for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, string(oauthmodel.InvalidRequest), "Failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := parseTokenRequest(r.PostForm)
		tokenResponse := s.deps.Tokens.ProcessTokenRequest(r.Context(), tokenReq, requestEvidence(r))

		if tokenResponse.RequiresChallenge() {
			w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(tokenResponse.StatusCode())
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// UserInfo returns the identity claims granted to the access token's subject
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeJSONError(w, "invalid_token", "The access token is not valid", http.StatusUnauthorized)
			return
		}

		granted := grantedScopes(jwt.Scopes(claims))
		subject, _ := claims["sub"].(string)
		if subject == "" || !oauthmodel.ContainsScope(granted, oauthmodel.ScopeOpenID) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo", error="insufficient_scope"`)
			writeJSONError(w, "insufficient_scope", "The access token does not grant the openid scope", http.StatusForbidden)
			return
		}

		augmented, err := s.deps.Augmenter.Augment(r.Context(), subject, granted)
		if err != nil {
			log.Err(err).Str("sub", subject).Msg("userinfo profile lookup failed")
			writeJSONError(w, string(oauthmodel.ServerError), oauthmodel.DescServerError, http.StatusInternalServerError)
			return
		}

		userInfo := make(map[string]any, len(augmented.Identity)+1)
		for k, v := range augmented.Identity {
			userInfo[k] = v
		}
		userInfo["sub"] = subject

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(userInfo)
	}
}

// Health reports that the server is accepting requests
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Preflight answers CORS preflight requests; CorsMiddleware writes the headers.
func (s *Server) Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseTokenRequest keeps the first value of every form field. Resource indicators may
// repeat.
func parseTokenRequest(form url.Values) *oauthmodel.TokenRequest {
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return oauthmodel.NewTokenRequest(params, form[oauthmodel.ParamResource])
}

// requestEvidence collects the Basic credentials and the TLS client certificate.
// Basic credentials are form-urlencoded (RFC 6749 section 2.3.1).
func requestEvidence(r *http.Request) clientauth.Evidence {
	var ev clientauth.Evidence
	if id, secret, ok := r.BasicAuth(); ok {
		ev.HasBasic = true
		ev.BasicClientID = unescapeCredential(id)
		ev.BasicSecret = unescapeCredential(secret)
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		ev.PeerCertificate = r.TLS.PeerCertificates[0]
	}
	return ev
}

func unescapeCredential(value string) string {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		return unescaped
	}
	return value
}

func grantedScopes(names []string) []oauthmodel.ParsedScope {
	scopes := make([]oauthmodel.ParsedScope, 0, len(names))
	for _, name := range names {
		scopes = append(scopes, oauthmodel.ParsedScope{Name: name, Raw: name})
	}
	return scopes
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
