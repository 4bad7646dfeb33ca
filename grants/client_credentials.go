package grants

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/resources"
	"github.com/jrsteele09/go-token-server/scopes"
)

var _ GrantValidator = (*ClientCredentialsValidator)(nil)

// ClientCredentialsValidator implements the client_credentials grant. There is no user, so
// only API scopes may be granted.
type ClientCredentialsValidator struct {
	catalog *resources.Catalog
}

func NewClientCredentialsValidator(catalog *resources.Catalog) *ClientCredentialsValidator {
	return &ClientCredentialsValidator{catalog: catalog}
}

func (v *ClientCredentialsValidator) ScopeOptions() scopes.Options {
	return scopes.Options{RequireScope: true, UseDefaults: true, APIScopesOnly: true}
}

func (v *ClientCredentialsValidator) Validate(_ context.Context, req *Request) *oauthmodel.ValidationResult {
	for _, s := range req.Scopes {
		if s.Name == oauthmodel.ScopeOfflineAccess || v.catalog.IsIdentityScope(s.Name) {
			return oauthmodel.FailureWith(oauthmodel.NewError(oauthmodel.InvalidScope, oauthmodel.DescInvalidScope).
				WithCause(fmt.Errorf("scope %q requires a user", s.Name)))
		}
	}
	result := oauthmodel.Success("")
	result.Scopes = req.Scopes
	return result
}
