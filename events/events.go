package events

import (
	"context"
	"time"
)

// Category groups events the same way for every sink.
type Category string

const (
	CategorySuccess     Category = "success"
	CategoryFailure     Category = "failure"
	CategoryError       Category = "error"
	CategoryInformation Category = "information"
)

// Name identifies the pipeline checkpoint that raised an event.
type Name string

const (
	ClientAuthenticationSuccess   Name = "client_authentication_success"
	ClientAuthenticationFailure   Name = "client_authentication_failure"
	TokenRequestValidationFailure Name = "token_request_validation_failure"
	TokenIssuedSuccess            Name = "token_issued_success"
	TokenIssuedFailure            Name = "token_issued_failure"
	RefreshTokenCommitted         Name = "refresh_token_committed"
)

// Event is raised at the post-authentication, post-validation and post-issuance checkpoints.
type Event struct {
	Name             Name
	Category         Category
	Time             time.Time
	ClientID         string
	GrantType        string
	CredentialKind   string
	Subject          string
	Scopes           []string
	Error            string
	ErrorDescription string
	Message          string
}

// Sink receives pipeline events. Implementations must be safe for concurrent use and must
// not block the request for long.
type Sink interface {
	Raise(ctx context.Context, e Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Raise(ctx context.Context, e Event) {
	f(ctx, e)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Raise(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Raise(ctx, e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})
