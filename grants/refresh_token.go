package grants

import (
	"context"
	"fmt"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/scopes"
	"github.com/jrsteele09/go-token-server/token/refresh"
)

var _ GrantValidator = (*RefreshTokenValidator)(nil)

// RefreshTokenValidator exchanges a refresh token handle. Handles are one-time use: the
// presented handle is consumed when tokens are issued.
type RefreshTokenValidator struct {
	manager *refresh.Manager
}

func NewRefreshTokenValidator(manager *refresh.Manager) *RefreshTokenValidator {
	return &RefreshTokenValidator{manager: manager}
}

// ScopeOptions does not apply defaults: an empty scope keeps the original grant's scopes.
func (v *RefreshTokenValidator) ScopeOptions() scopes.Options {
	return scopes.Options{}
}

func (v *RefreshTokenValidator) Validate(ctx context.Context, req *Request) *oauthmodel.ValidationResult {
	handle := req.TokenRequest.Param(oauthmodel.ParamRefreshToken)
	if handle == "" {
		return oauthmodel.Failure(oauthmodel.InvalidRequest, oauthmodel.DescMissingParameter)
	}

	stored, err := v.manager.Resolve(ctx, handle, req.Client.ID)
	if autherrors.Is(err, autherrors.ErrInvalidRefreshToken) {
		return invalidGrant(err)
	}
	if err != nil {
		return serverError(err)
	}
	if !req.Client.AllowOfflineAccess {
		return invalidGrant(fmt.Errorf("client %s no longer allows offline access", req.Client.ID))
	}

	granted, err := narrowScopes(stored.Scopes, req.Scopes)
	if err != nil {
		return oauthmodel.FailureWith(oauthmodel.NewError(oauthmodel.InvalidScope, oauthmodel.DescInvalidScope).WithCause(err))
	}

	result := oauthmodel.Success(stored.Subject, stored.AMR...)
	result.AuthTime = stored.AuthTime
	result.Claims = stored.Claims
	result.Scopes = granted
	result.OnCommit(func(ctx context.Context) error {
		if err := v.manager.Consume(ctx, stored); err != nil {
			if autherrors.Is(err, autherrors.ErrInvalidRefreshToken) {
				return oauthmodel.NewError(oauthmodel.InvalidGrant, oauthmodel.DescInvalidGrant).WithCause(err)
			}
			return err
		}
		result.OnRollback(func(ctx context.Context) error {
			return v.manager.Restore(ctx, stored)
		})
		return nil
	})
	return result
}

// narrowScopes returns the requested scopes when they are a subset of the original grant,
// or the original scopes when none were requested.
func narrowScopes(original, requested []oauthmodel.ParsedScope) ([]oauthmodel.ParsedScope, error) {
	if len(requested) == 0 {
		return original, nil
	}
	for _, r := range requested {
		if !containsParsed(original, r) {
			return nil, fmt.Errorf("scope %q was not part of the original grant", r.Raw)
		}
	}
	return requested, nil
}

func containsParsed(scopes []oauthmodel.ParsedScope, s oauthmodel.ParsedScope) bool {
	for _, o := range scopes {
		if o.Name == s.Name && (s.Resource == "" || o.Resource == "" || o.Resource == s.Resource) {
			return true
		}
	}
	return false
}

func invalidGrant(cause error) *oauthmodel.ValidationResult {
	return oauthmodel.FailureWith(oauthmodel.NewError(oauthmodel.InvalidGrant, oauthmodel.DescInvalidGrant).WithCause(cause))
}
