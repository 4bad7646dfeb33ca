package oauthmodel

import "net/http"

// ErrorCode is an OAuth2 token endpoint error code (RFC 6749 section 5.2).
type ErrorCode string

const (
	InvalidRequest       ErrorCode = "invalid_request"
	InvalidClient        ErrorCode = "invalid_client"
	InvalidGrant         ErrorCode = "invalid_grant"
	InvalidScope         ErrorCode = "invalid_scope"
	UnauthorizedClient   ErrorCode = "unauthorized_client"
	UnsupportedGrantType ErrorCode = "unsupported_grant_type"
	ServerError          ErrorCode = "server_error"
)

// Fixed error descriptions. Descriptions never carry internal error detail.
const (
	DescInvalidCredential     = "invalid_credential"
	DescInvalidClient         = "invalid_client"
	DescInvalidGrant          = "invalid_grant"
	DescInvalidScope          = "invalid_scope"
	DescInvalidResource       = "resource indicator does not match the granted scopes"
	DescMissingGrantType      = "grant_type is missing"
	DescMissingParameter      = "required parameter is missing"
	DescUnsupportedGrantType  = "grant type is not supported"
	DescUnauthorizedGrantType = "client is not allowed to use this grant type"
	DescServerError           = "an internal error occurred"
)

// Error is a protocol error returned by a pipeline stage.
type Error struct {
	Code        ErrorCode
	Description string

	// MissingCredentials marks an invalid_client error where the caller sent no credentials at all.
	MissingCredentials bool

	// Cause is the internal error behind the protocol error. It is logged, never rendered.
	Cause error
}

// NewError creates a protocol error.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// WithCause returns a copy of the error carrying an internal cause.
func (e *Error) WithCause(err error) *Error {
	out := *e
	out.Cause = err
	return &out
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error to the status code written by the token endpoint.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ServerError:
		return http.StatusInternalServerError
	case InvalidClient:
		if e.MissingCredentials {
			return http.StatusUnauthorized
		}
	}
	return http.StatusBadRequest
}
