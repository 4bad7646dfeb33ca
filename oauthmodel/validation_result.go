package oauthmodel

import (
	"context"
	"time"
)

// ValidationResult is the outcome of the grant validation stages.
// A result is either a success carrying the subject and granted scopes, or an error.
// Once a result has failed it stays failed: there is no way back to success.
type ValidationResult struct {
	// Subject is the user id, empty for client-only grants.
	Subject string
	// AMR lists the authentication methods used for the subject.
	AMR []string
	// AuthTime is when the subject originally authenticated.
	AuthTime time.Time
	// Claims are extra subject claims produced by the validator.
	Claims map[string]any
	// Scopes are the granted scopes in request order.
	Scopes []ParsedScope

	err       *Error
	custom    *CustomResponse
	commits   []func(context.Context) error
	rollbacks []func(context.Context) error
}

// Success creates a successful result.
func Success(subject string, amr ...string) *ValidationResult {
	return &ValidationResult{Subject: subject, AMR: amr}
}

// Failure creates a failed result.
func Failure(code ErrorCode, description string) *ValidationResult {
	return &ValidationResult{err: NewError(code, description)}
}

// FailureWith creates a failed result from an existing protocol error.
func FailureWith(err *Error) *ValidationResult {
	return &ValidationResult{err: err}
}

// Fail marks the result as an error. The first error recorded is kept.
func (r *ValidationResult) Fail(code ErrorCode, description string) {
	if r.err != nil {
		return
	}
	r.err = NewError(code, description)
}

// IsError reports whether the result has failed.
func (r *ValidationResult) IsError() bool {
	return r.err != nil
}

// Err returns the protocol error, or nil on success.
func (r *ValidationResult) Err() *Error {
	return r.err
}

// HasSubject reports whether the result identifies an end user.
func (r *ValidationResult) HasSubject() bool {
	return r.Subject != ""
}

// AddCustom adds a custom response property. Allowed in both outcomes.
func (r *ValidationResult) AddCustom(key string, v Value) {
	if r.custom == nil {
		r.custom = NewCustomResponse()
	}
	r.custom.Set(key, v)
}

// MergeCustom merges a set of custom response properties.
func (r *ValidationResult) MergeCustom(c *CustomResponse) {
	if c.Len() == 0 {
		return
	}
	if r.custom == nil {
		r.custom = NewCustomResponse()
	}
	r.custom.Merge(c)
}

// Custom returns the accumulated custom response properties, possibly nil.
func (r *ValidationResult) Custom() *CustomResponse {
	return r.custom
}

// OnCommit registers an action run immediately before tokens are issued, such as consuming
// a one-time refresh token. Actions are skipped when the result fails.
func (r *ValidationResult) OnCommit(fn func(context.Context) error) {
	r.commits = append(r.commits, fn)
}

// Commit runs the registered actions in order and stops at the first error.
func (r *ValidationResult) Commit(ctx context.Context) error {
	if r.err != nil {
		return nil
	}
	for _, fn := range r.commits {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// OnRollback registers an action that undoes a completed commit action. Commit actions
// register it once their side effect has happened.
func (r *ValidationResult) OnRollback(fn func(context.Context) error) {
	r.rollbacks = append(r.rollbacks, fn)
}

// Rollback runs the registered undo actions in reverse order when issuance fails after
// Commit. Every action runs; the first error is returned. Actions run at most once.
func (r *ValidationResult) Rollback(ctx context.Context) error {
	var first error
	for i := len(r.rollbacks) - 1; i >= 0; i-- {
		if err := r.rollbacks[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	r.rollbacks = nil
	return first
}
