package grants

import (
	"fmt"

	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/oauthmodel"
)

// Dispatcher resolves the validator for a grant type. Built-in grants are looked up
// first, then the extension registry. Resolution is an exact match with no fallback.
type Dispatcher struct {
	builtIn    map[oauthmodel.GrantType]GrantValidator
	extensions *ExtensionRegistry
}

// NewDispatcher creates a dispatcher. Only built-in grant names may appear in builtIn;
// everything else is registered as an extension.
func NewDispatcher(builtIn map[oauthmodel.GrantType]GrantValidator, extensions *ExtensionRegistry) (*Dispatcher, error) {
	d := &Dispatcher{
		builtIn:    make(map[oauthmodel.GrantType]GrantValidator, len(builtIn)),
		extensions: extensions,
	}
	for grantType, v := range builtIn {
		if !grantType.IsBuiltIn() {
			return nil, fmt.Errorf("[NewDispatcher] %q is not a built-in grant type", grantType)
		}
		if v == nil {
			return nil, fmt.Errorf("[NewDispatcher] nil validator for %q", grantType)
		}
		d.builtIn[grantType] = v
	}
	if d.extensions == nil {
		d.extensions = NewExtensionRegistry()
	}
	return d, nil
}

// Resolve returns the validator for the request's grant type. Unknown grant types fail with
// unsupported_grant_type; grant types the client may not use fail with unauthorized_client.
func (d *Dispatcher) Resolve(grantType oauthmodel.GrantType, client *clients.Client) (GrantValidator, error) {
	v, ok := d.builtIn[grantType]
	if !ok && !grantType.IsBuiltIn() {
		v, ok = d.extensions.Lookup(grantType)
	}
	if !ok {
		return nil, oauthmodel.NewError(oauthmodel.UnsupportedGrantType, oauthmodel.DescUnsupportedGrantType).
			WithCause(fmt.Errorf("grant type %q", grantType))
	}
	if !client.HasGrantType(string(grantType)) {
		return nil, oauthmodel.NewError(oauthmodel.UnauthorizedClient, oauthmodel.DescUnauthorizedGrantType).
			WithCause(fmt.Errorf("client %s may not use %q", client.ID, grantType))
	}
	return v, nil
}

// GrantTypes lists every grant type the dispatcher can serve.
func (d *Dispatcher) GrantTypes() []oauthmodel.GrantType {
	out := make([]oauthmodel.GrantType, 0, len(d.builtIn))
	for _, g := range []oauthmodel.GrantType{oauthmodel.PasswordGrant, oauthmodel.ClientCredentialsGrant, oauthmodel.RefreshTokenGrant} {
		if _, ok := d.builtIn[g]; ok {
			out = append(out, g)
		}
	}
	return append(out, d.extensions.Names()...)
}
