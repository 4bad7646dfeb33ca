package grants

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/scopes"
)

// nowTimeFunc returns the current time. It can be overridden in tests.
var nowTimeFunc = time.Now

// Request is what a grant validator sees: the token request, the authenticated client
// and the scopes that survived parsing.
type Request struct {
	TokenRequest *oauthmodel.TokenRequest
	Client       *clients.Client
	Scopes       []oauthmodel.ParsedScope
}

// GrantValidator validates the grant specific part of a token request.
// Validate never returns nil; a failed result carries the protocol error.
type GrantValidator interface {
	// ScopeOptions controls how the raw scope parameter is parsed for this grant.
	ScopeOptions() scopes.Options
	Validate(ctx context.Context, req *Request) *oauthmodel.ValidationResult
}

func serverError(cause error) *oauthmodel.ValidationResult {
	return oauthmodel.FailureWith(oauthmodel.NewError(oauthmodel.ServerError, oauthmodel.DescServerError).WithCause(cause))
}
