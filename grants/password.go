package grants

import (
	"context"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/scopes"
	"github.com/jrsteele09/go-token-server/users"
)

var _ GrantValidator = (*PasswordValidator)(nil)

// PasswordValidator implements the resource owner password grant.
type PasswordValidator struct {
	users users.Store
}

func NewPasswordValidator(store users.Store) *PasswordValidator {
	return &PasswordValidator{users: store}
}

func (v *PasswordValidator) ScopeOptions() scopes.Options {
	return scopes.Options{RequireScope: true, UseDefaults: true}
}

// Validate verifies the username and password. Unknown users and wrong passwords produce the
// same invalid_grant error.
func (v *PasswordValidator) Validate(ctx context.Context, req *Request) *oauthmodel.ValidationResult {
	username := req.TokenRequest.Param(oauthmodel.ParamUsername)
	if username == "" {
		return oauthmodel.Failure(oauthmodel.InvalidRequest, oauthmodel.DescMissingParameter)
	}

	user, err := v.users.Verify(ctx, username, req.TokenRequest.Param(oauthmodel.ParamPassword))
	if autherrors.Is(err, autherrors.ErrInvalidCredentials) {
		return oauthmodel.FailureWith(oauthmodel.NewError(oauthmodel.InvalidGrant, oauthmodel.DescInvalidCredential).WithCause(err))
	}
	if err != nil {
		return serverError(err)
	}

	result := oauthmodel.Success(user.ID, oauthmodel.AMRPassword)
	result.AuthTime = nowTimeFunc()
	result.Scopes = req.Scopes
	return result
}
