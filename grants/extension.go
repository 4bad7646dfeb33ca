package grants

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jrsteele09/go-token-server/clients"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/scopes"
)

// ExtensionValidator validates a host defined grant type. It sees every request parameter
// and decides the outcome on its own: a validator may fail a request even when all of its
// parameters are present.
type ExtensionValidator interface {
	Validate(ctx context.Context, req *oauthmodel.TokenRequest, client *clients.Client) *oauthmodel.ValidationResult
}

// ExtensionValidatorFunc adapts a function to an ExtensionValidator.
type ExtensionValidatorFunc func(ctx context.Context, req *oauthmodel.TokenRequest, client *clients.Client) *oauthmodel.ValidationResult

func (f ExtensionValidatorFunc) Validate(ctx context.Context, req *oauthmodel.TokenRequest, client *clients.Client) *oauthmodel.ValidationResult {
	return f(ctx, req, client)
}

// ExtensionOption configures a registered extension grant.
type ExtensionOption func(*extensionGrant)

// WithScopeOptions overrides scope parsing for the extension grant.
func WithScopeOptions(opts scopes.Options) ExtensionOption {
	return func(e *extensionGrant) {
		e.scopeOptions = opts
	}
}

// WithRequiredParameters fails requests missing any of the named parameters with
// invalid_grant before the validator runs.
func WithRequiredParameters(names ...string) ExtensionOption {
	return func(e *extensionGrant) {
		e.required = append(e.required, names...)
	}
}

// ExtensionRegistry maps extension grant names to validators. It is populated at startup;
// registration errors are configuration errors.
type ExtensionRegistry struct {
	grants map[oauthmodel.GrantType]*extensionGrant
	lock   sync.RWMutex
}

func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{grants: make(map[oauthmodel.GrantType]*extensionGrant)}
}

// Register adds a validator under a grant type name. Empty names, built-in names and names
// already registered are rejected.
func (r *ExtensionRegistry) Register(name string, v ExtensionValidator, opts ...ExtensionOption) error {
	grantType := oauthmodel.GrantType(name)
	if name == "" || v == nil {
		return fmt.Errorf("[ExtensionRegistry.Register] name and validator are required")
	}
	if grantType.IsBuiltIn() {
		return autherrors.Wrapf(autherrors.ErrDuplicate, "[ExtensionRegistry.Register] %q is a built-in grant type", name)
	}

	e := &extensionGrant{
		validator:    v,
		scopeOptions: scopes.Options{UseDefaults: true},
	}
	for _, opt := range opts {
		opt(e)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.grants[grantType]; exists {
		return autherrors.Wrapf(autherrors.ErrDuplicate, "[ExtensionRegistry.Register] grant type %q", name)
	}
	r.grants[grantType] = e
	return nil
}

// Lookup returns the validator registered for a grant type.
func (r *ExtensionRegistry) Lookup(grantType oauthmodel.GrantType) (GrantValidator, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	e, ok := r.grants[grantType]
	if !ok {
		return nil, false
	}
	return e, true
}

// Names returns the registered grant types in sorted order.
func (r *ExtensionRegistry) Names() []oauthmodel.GrantType {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]oauthmodel.GrantType, 0, len(r.grants))
	for name := range r.grants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// extensionGrant adapts an ExtensionValidator to the GrantValidator contract.
type extensionGrant struct {
	validator    ExtensionValidator
	scopeOptions scopes.Options
	required     []string
}

func (e *extensionGrant) ScopeOptions() scopes.Options {
	return e.scopeOptions
}

func (e *extensionGrant) Validate(ctx context.Context, req *Request) *oauthmodel.ValidationResult {
	for _, name := range e.required {
		if !req.TokenRequest.HasParam(name) {
			return oauthmodel.FailureWith(oauthmodel.NewError(oauthmodel.InvalidGrant, oauthmodel.DescMissingParameter).
				WithCause(fmt.Errorf("missing parameter %q", name)))
		}
	}
	result := e.validator.Validate(ctx, req.TokenRequest, req.Client)
	if result == nil {
		return serverError(fmt.Errorf("extension grant %q returned no result", req.TokenRequest.GrantType))
	}
	if !result.IsError() && result.Scopes == nil {
		result.Scopes = req.Scopes
	}
	if !result.IsError() && result.HasSubject() && result.AuthTime.IsZero() {
		result.AuthTime = nowTimeFunc()
	}
	return result
}

// NoSubjectExtension builds an extension validator for grants that authenticate the client
// only. check returns nil to grant, an *oauthmodel.Error to fail with that error, or any
// other error to fail with invalid_grant.
func NoSubjectExtension(check func(ctx context.Context, req *oauthmodel.TokenRequest, client *clients.Client) error) ExtensionValidator {
	return ExtensionValidatorFunc(func(ctx context.Context, req *oauthmodel.TokenRequest, client *clients.Client) *oauthmodel.ValidationResult {
		if check != nil {
			if err := check(ctx, req, client); err != nil {
				var oauthErr *oauthmodel.Error
				if autherrors.As(err, &oauthErr) {
					return oauthmodel.FailureWith(oauthErr)
				}
				return invalidGrant(err)
			}
		}
		return oauthmodel.Success("")
	})
}
