package auth

import (
	"context"

	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/oauth2"
	"github.com/jrsteele09/go-token-server/oauthmodel"
)

// ValidationContext is handed to custom token request validators.
type ValidationContext struct {
	Request *oauthmodel.TokenRequest
	Client  *clients.Client
	// Result is the successful grant validation result. Validators may add custom response
	// properties to it or call Fail; a failed result stays failed.
	Result *oauthmodel.ValidationResult
}

// CustomTokenRequestValidator runs only after the grant validator succeeded. It lets the
// host apply business rules without touching the grant validators. A returned error is a
// collaborator failure and ends the request with server_error.
type CustomTokenRequestValidator interface {
	ValidateTokenRequest(ctx context.Context, vc *ValidationContext) error
}

// CustomTokenRequestValidatorFunc adapts a function to a CustomTokenRequestValidator.
type CustomTokenRequestValidatorFunc func(ctx context.Context, vc *ValidationContext) error

func (f CustomTokenRequestValidatorFunc) ValidateTokenRequest(ctx context.Context, vc *ValidationContext) error {
	return f(ctx, vc)
}

// DecorationContext is handed to response decorators once the outcome is final.
type DecorationContext struct {
	Request *oauthmodel.TokenRequest
	Client  *clients.Client   // nil when client authentication failed
	Error   *oauthmodel.Error // nil on success

	custom *oauthmodel.CustomResponse
}

// Add sets a custom response property unless it is a protocol field or was already set
// by an earlier stage. It reports whether the property was added.
func (dc *DecorationContext) Add(key string, v oauthmodel.Value) bool {
	if oauth2.IsProtocolField(key) {
		return false
	}
	if _, exists := dc.custom.Get(key); exists {
		return false
	}
	dc.custom.Set(key, v)
	return true
}

// ResponseDecorator runs for every outcome, success or error, and may only add custom
// response properties. It is how the same custom fields reach both envelopes.
type ResponseDecorator interface {
	DecorateResponse(ctx context.Context, dc *DecorationContext)
}

// ResponseDecoratorFunc adapts a function to a ResponseDecorator.
type ResponseDecoratorFunc func(ctx context.Context, dc *DecorationContext)

func (f ResponseDecoratorFunc) DecorateResponse(ctx context.Context, dc *DecorationContext) {
	f(ctx, dc)
}
