package oauth2

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/token"
)

// Response field names. Custom properties never replace these.
const (
	FieldAccessToken      = "access_token"
	FieldTokenType        = "token_type"
	FieldExpiresIn        = "expires_in"
	FieldIdentityToken    = "identity_token"
	FieldRefreshToken     = "refresh_token"
	FieldScope            = "scope"
	FieldError            = "error"
	FieldErrorDescription = "error_description"
)

var protocolFields = map[string]struct{}{
	FieldAccessToken:  {}, FieldTokenType: {}, FieldExpiresIn: {}, FieldIdentityToken: {},
	FieldRefreshToken: {}, FieldScope: {}, FieldError: {}, FieldErrorDescription: {},
}

// IsProtocolField reports whether a response property is reserved for the protocol.
func IsProtocolField(name string) bool {
	_, ok := protocolFields[name]
	return ok
}

// TokenResponse represents the response from an OAuth2 token request.
// A response is either a success carrying tokens or an error; never both.
// Custom properties are rendered after the protocol fields.
type TokenResponse struct {
	// AccessToken is the JWT token used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int

	// IdentityToken is the OpenID Connect identity token.
	// Only present: When "openid" was granted for a user
	IdentityToken string

	// RefreshToken is an opaque one-time handle used to obtain new access tokens.
	// Only present: When "offline_access" was granted and the client allows it
	RefreshToken string

	// Scope is the space-separated list of granted scopes.
	Scope string

	// Error is the protocol error code of a failed request.
	Error oauthmodel.ErrorCode

	// ErrorDescription is the fixed description of the failing stage.
	ErrorDescription string

	// Custom holds host supplied properties merged into either envelope.
	Custom *oauthmodel.CustomResponse

	err *oauthmodel.Error
}

// NewSuccessResponse composes the success envelope for issued tokens.
func NewSuccessResponse(issued *token.IssuedToken, custom *oauthmodel.CustomResponse) *TokenResponse {
	return &TokenResponse{
		AccessToken:   issued.AccessToken,
		TokenType:     oauthmodel.TokenTypeBearer,
		ExpiresIn:     issued.ExpiresIn,
		IdentityToken: issued.IdentityToken,
		RefreshToken:  issued.RefreshToken,
		Scope:         oauthmodel.JoinScopes(issued.Scopes),
		Custom:        custom.Clone(),
	}
}

// NewErrorResponse composes the error envelope.
func NewErrorResponse(err *oauthmodel.Error, custom *oauthmodel.CustomResponse) *TokenResponse {
	return &TokenResponse{
		Error:            err.Code,
		ErrorDescription: err.Description,
		Custom:           custom.Clone(),
		err:              err,
	}
}

// IsError reports whether the response is an error envelope.
func (r *TokenResponse) IsError() bool {
	return r.Error != ""
}

// StatusCode returns the HTTP status for the response.
func (r *TokenResponse) StatusCode() int {
	if r.err != nil {
		return r.err.HTTPStatus()
	}
	if r.IsError() {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

// RequiresChallenge reports whether the response needs a WWW-Authenticate header because
// the client sent no credentials.
func (r *TokenResponse) RequiresChallenge() bool {
	return r.err != nil && r.err.Code == oauthmodel.InvalidClient && r.err.MissingCredentials
}

// Map returns the response as it is rendered on the wire.
func (r *TokenResponse) Map() map[string]any {
	out := make(map[string]any)
	for _, f := range r.fields() {
		if v, ok := f.value.(oauthmodel.Value); ok {
			out[f.name] = v.Interface()
			continue
		}
		out[f.name] = f.value
	}
	return out
}

type field struct {
	name  string
	value any
}

func (r *TokenResponse) fields() []field {
	var out []field
	if r.IsError() {
		out = append(out, field{FieldError, string(r.Error)})
		if r.ErrorDescription != "" {
			out = append(out, field{FieldErrorDescription, r.ErrorDescription})
		}
	} else {
		out = append(out,
			field{FieldAccessToken, r.AccessToken},
			field{FieldTokenType, r.TokenType},
			field{FieldExpiresIn, r.ExpiresIn},
		)
		if r.IdentityToken != "" {
			out = append(out, field{FieldIdentityToken, r.IdentityToken})
		}
		if r.RefreshToken != "" {
			out = append(out, field{FieldRefreshToken, r.RefreshToken})
		}
		if r.Scope != "" {
			out = append(out, field{FieldScope, r.Scope})
		}
	}
	for _, k := range r.Custom.Keys() {
		if IsProtocolField(k) {
			continue
		}
		v, _ := r.Custom.Get(k)
		out = append(out, field{k, v})
	}
	return out
}

// MarshalJSON renders protocol fields first, then custom properties in insertion order.
func (r *TokenResponse) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
