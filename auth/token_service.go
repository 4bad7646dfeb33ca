package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-server/clientauth"
	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/events"
	"github.com/jrsteele09/go-token-server/grants"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauth2"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/profile"
	"github.com/jrsteele09/go-token-server/scopes"
	"github.com/jrsteele09/go-token-server/token"
	"github.com/jrsteele09/go-token-server/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrsteele09/go-token-server/auth"

// Components holds the pipeline stages of the TokenService
type Components struct {
	Authenticator *clientauth.Authenticator // Client authentication
	Dispatcher    *grants.Dispatcher        // grant_type to validator lookup
	ScopeParser   scopes.Parser             // Raw scope parameter parsing
	Augmenter     *profile.Augmenter        // Subject claims for granted scopes
	Issuer        *token.Issuer             // Token signing and refresh token storage
}

// TokenService runs a token request through the token endpoint pipeline: client
// authentication, grant dispatch, scope parsing, grant validation, custom validation,
// profile augmentation, issuance and response composition.
type TokenService struct {
	components       Components
	customValidators []CustomTokenRequestValidator
	decorators       []ResponseDecorator
	events           events.Sink
	tracer           trace.Tracer
	nowTime          func() time.Time // nowTime function (injectable for testing)
}

// TokenServiceOption defines a function type to modify the TokenService instance.
type TokenServiceOption func(*TokenService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		s.nowTime = nowFunc
	}
}

// WithCustomValidator appends a custom token request validator. Validators run in the
// order they were added and stop at the first failure.
func WithCustomValidator(v CustomTokenRequestValidator) TokenServiceOption {
	return func(s *TokenService) {
		s.customValidators = append(s.customValidators, v)
	}
}

// WithResponseDecorator appends a response decorator.
func WithResponseDecorator(d ResponseDecorator) TokenServiceOption {
	return func(s *TokenService) {
		s.decorators = append(s.decorators, d)
	}
}

// WithEvents sets the sink receiving pipeline events.
func WithEvents(sink events.Sink) TokenServiceOption {
	return func(s *TokenService) {
		s.events = sink
	}
}

// WithTracerProvider traces the pipeline with the given provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) TokenServiceOption {
	return func(s *TokenService) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// NewTokenService initializes a new TokenService with required components.
func NewTokenService(components Components, options ...TokenServiceOption) (*TokenService, error) {
	if components.Authenticator == nil {
		return nil, errors.New("[NewTokenService] Authenticator is required")
	}
	if components.Dispatcher == nil {
		return nil, errors.New("[NewTokenService] Dispatcher is required")
	}
	if components.ScopeParser == nil {
		return nil, errors.New("[NewTokenService] ScopeParser is required")
	}
	if components.Augmenter == nil {
		return nil, errors.New("[NewTokenService] Augmenter is required")
	}
	if components.Issuer == nil {
		return nil, errors.New("[NewTokenService] Issuer is required")
	}

	s := &TokenService{
		components: components,
		events:     events.Discard,
		tracer:     otel.Tracer(tracerName),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// requestState accumulates what the pipeline learned about one request.
type requestState struct {
	req    *oauthmodel.TokenRequest
	auth   *clientauth.Result
	result *oauthmodel.ValidationResult
	issued *token.IssuedToken
}

func (st *requestState) client() *clients.Client {
	if st.auth == nil {
		return nil
	}
	return st.auth.Client
}

// ProcessTokenRequest runs the pipeline and always returns a response envelope. The first
// failing stage ends the pipeline.
func (s *TokenService) ProcessTokenRequest(ctx context.Context, req *oauthmodel.TokenRequest, evidence clientauth.Evidence) *oauth2.TokenResponse {
	ctx, span := s.tracer.Start(ctx, "tokenserver.token_request", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("tokenserver.grant_type", string(req.GrantType)))

	st := &requestState{req: req}
	oauthErr := s.process(ctx, st, evidence)

	custom := oauthmodel.NewCustomResponse()
	if st.result != nil {
		custom.Merge(st.result.Custom())
	}
	dc := &DecorationContext{Request: req, Client: st.client(), Error: oauthErr, custom: custom}
	for _, d := range s.decorators {
		d.DecorateResponse(ctx, dc)
	}

	if oauthErr != nil {
		span.SetAttributes(attribute.String("tokenserver.error", string(oauthErr.Code)))
		if oauthErr.Code == oauthmodel.ServerError {
			span.RecordError(oauthErr)
			span.SetStatus(codes.Error, "server_error")
		}
		return oauth2.NewErrorResponse(oauthErr, custom)
	}
	span.SetStatus(codes.Ok, "")
	return oauth2.NewSuccessResponse(st.issued, custom)
}

func (s *TokenService) process(ctx context.Context, st *requestState, evidence clientauth.Evidence) *oauthmodel.Error {
	req := st.req
	if req.GrantType == "" {
		return oauthmodel.NewError(oauthmodel.InvalidRequest, oauthmodel.DescMissingGrantType)
	}

	// Client authentication
	auth, err := s.authenticate(ctx, req, evidence)
	if err != nil {
		oauthErr := s.protocolError(err, "client authentication")
		s.raise(ctx, st, events.ClientAuthenticationFailure, events.CategoryFailure, oauthErr)
		return oauthErr
	}
	st.auth = auth
	s.raise(ctx, st, events.ClientAuthenticationSuccess, events.CategorySuccess, nil)

	// Grant dispatch, scope parsing and grant validation
	result, oauthErr := s.validate(ctx, st)
	if oauthErr != nil {
		s.raise(ctx, st, events.TokenRequestValidationFailure, events.CategoryFailure, oauthErr)
		return oauthErr
	}
	st.result = result

	// Profile augmentation and issuance
	issued, oauthErr := s.issue(ctx, st)
	if oauthErr != nil {
		s.raise(ctx, st, events.TokenIssuedFailure, events.CategoryError, oauthErr)
		return oauthErr
	}
	st.issued = issued
	s.raise(ctx, st, events.TokenIssuedSuccess, events.CategorySuccess, nil)
	return nil
}

func (s *TokenService) authenticate(ctx context.Context, req *oauthmodel.TokenRequest, evidence clientauth.Evidence) (*clientauth.Result, error) {
	ctx, span := s.tracer.Start(ctx, "tokenserver.authenticate_client")
	defer span.End()
	res, err := s.components.Authenticator.Authenticate(ctx, req, evidence)
	if err != nil {
		span.SetStatus(codes.Error, "client_authentication_failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tokenserver.client_id", res.Client.ID),
		attribute.String("tokenserver.credential_kind", string(res.Kind)),
	)
	return res, nil
}

// validate resolves the grant validator, parses the scopes, validates the grant, runs the
// custom validators and checks the requested resource indicators. Any failure is returned
// as a protocol error; a failed result is never returned as success.
func (s *TokenService) validate(ctx context.Context, st *requestState) (*oauthmodel.ValidationResult, *oauthmodel.Error) {
	ctx, span := s.tracer.Start(ctx, "tokenserver.validate_request")
	defer span.End()

	req, client := st.req, st.auth.Client
	validator, err := s.components.Dispatcher.Resolve(req.GrantType, client)
	if err != nil {
		return nil, s.protocolError(err, "grant dispatch")
	}

	parsed, err := s.components.ScopeParser.Parse(req.Scope, client, validator.ScopeOptions())
	if err != nil {
		return nil, s.protocolError(err, "scope parsing")
	}

	result := validator.Validate(ctx, &grants.Request{TokenRequest: req, Client: client, Scopes: parsed})
	if result == nil {
		return nil, s.protocolError(errors.Errorf("grant %q produced no result", req.GrantType), "grant validation")
	}
	// Custom properties added by a failing validator still reach the error envelope.
	st.result = result
	if result.IsError() {
		return nil, s.logged(result.Err(), "grant validation")
	}

	vc := &ValidationContext{Request: req, Client: client, Result: result}
	for _, cv := range s.customValidators {
		if err := cv.ValidateTokenRequest(ctx, vc); err != nil {
			return nil, s.protocolError(err, "custom token request validation")
		}
		if result.IsError() {
			return nil, s.logged(result.Err(), "custom token request validation")
		}
	}

	if _, err := s.components.Issuer.Audiences(result.Scopes, req.Resources); err != nil {
		return nil, s.protocolError(err, "resource indicators")
	}
	span.SetAttributes(attribute.Bool("tokenserver.has_subject", result.HasSubject()))
	return result, nil
}

// issue augments the subject's claims, commits grant side effects and issues the tokens.
func (s *TokenService) issue(ctx context.Context, st *requestState) (*token.IssuedToken, *oauthmodel.Error) {
	ctx, span := s.tracer.Start(ctx, "tokenserver.issue_tokens")
	defer span.End()

	result := st.result
	claims, err := s.components.Augmenter.Augment(ctx, result.Subject, result.Scopes)
	if err != nil {
		return nil, s.protocolError(err, "profile augmentation")
	}

	// Nothing has been written yet; a cancelled request leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, s.protocolError(err, "token issuance")
	}
	if err := result.Commit(ctx); err != nil {
		s.rollback(ctx, st)
		return nil, s.protocolError(err, "grant commit")
	}

	issued, err := s.components.Issuer.Issue(ctx, token.IssueRequest{
		Client:                st.auth.Client,
		Result:                result,
		AccessClaims:          claims.Access,
		IdentityClaims:        claims.Identity,
		CertificateThumbprint: st.auth.CertificateThumbprint,
		Resources:             st.req.Resources,
	})
	if err != nil {
		s.rollback(ctx, st)
		return nil, s.protocolError(err, "token issuance")
	}

	if issued.RefreshToken != "" {
		s.raise(ctx, st, events.RefreshTokenCommitted, events.CategoryInformation, nil)
		if ctx.Err() != nil {
			log.Warn().
				Str("client_id", st.auth.Client.ID).
				Str("refresh_token_hash", refresh.HashHandle(issued.RefreshToken)).
				Msg("request cancelled after refresh token was stored")
		}
	}
	return issued, nil
}

// rollback undoes the grant's committed side effects after a failed issuance, so a consumed
// refresh token stays usable. It runs even when the request was cancelled.
func (s *TokenService) rollback(ctx context.Context, st *requestState) {
	if err := st.result.Rollback(context.WithoutCancel(ctx)); err != nil {
		log.Err(err).Str("client_id", st.auth.Client.ID).Msg("failed to roll back grant commit")
	}
}

// protocolError converts a stage error to a protocol error. Anything that is not already
// a protocol error is a collaborator failure and becomes server_error.
func (s *TokenService) protocolError(err error, stage string) *oauthmodel.Error {
	var oauthErr *oauthmodel.Error
	if !autherrors.As(err, &oauthErr) {
		oauthErr = oauthmodel.NewError(oauthmodel.ServerError, oauthmodel.DescServerError).WithCause(errors.Wrap(err, stage))
	}
	return s.logged(oauthErr, stage)
}

func (s *TokenService) logged(oauthErr *oauthmodel.Error, stage string) *oauthmodel.Error {
	if oauthErr.Code == oauthmodel.ServerError {
		log.Err(oauthErr.Cause).Str("stage", stage).Msg("token request failed")
	} else {
		log.Debug().Err(oauthErr.Cause).Str("stage", stage).Str("oauth_error", string(oauthErr.Code)).Msg("token request rejected")
	}
	return oauthErr
}

func (s *TokenService) raise(ctx context.Context, st *requestState, name events.Name, category events.Category, oauthErr *oauthmodel.Error) {
	e := events.Event{
		Name:      name,
		Category:  category,
		Time:      s.nowTime(),
		ClientID:  st.req.ClientID,
		GrantType: string(st.req.GrantType),
	}
	if st.auth != nil {
		e.ClientID = st.auth.Client.ID
		e.CredentialKind = string(st.auth.Kind)
	}
	if st.result != nil && !st.result.IsError() {
		e.Subject = st.result.Subject
		e.Scopes = oauthmodel.ScopeNames(st.result.Scopes)
	}
	if oauthErr != nil {
		e.Error = string(oauthErr.Code)
		e.ErrorDescription = oauthErr.Description
	}
	s.events.Raise(ctx, e)
}
