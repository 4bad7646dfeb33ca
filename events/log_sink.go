package events

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink writes events with zerolog. Failures log at warn, errors at error.
type LogSink struct {
	logger *zerolog.Logger
}

// NewLogSink creates a sink writing to the given logger, or the global logger when nil.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Raise(_ context.Context, e Event) {
	logger := s.logger
	if logger == nil {
		logger = &log.Logger
	}

	var ev *zerolog.Event
	switch e.Category {
	case CategoryError:
		ev = logger.Error()
	case CategoryFailure:
		ev = logger.Warn()
	case CategorySuccess:
		ev = logger.Info()
	default:
		ev = logger.Debug()
	}

	ev = ev.Str("event", string(e.Name)).
		Str("category", string(e.Category)).
		Str("client_id", e.ClientID)
	if e.GrantType != "" {
		ev = ev.Str("grant_type", e.GrantType)
	}
	if e.CredentialKind != "" {
		ev = ev.Str("credential", e.CredentialKind)
	}
	if e.Subject != "" {
		ev = ev.Str("sub", e.Subject)
	}
	if len(e.Scopes) > 0 {
		ev = ev.Strs("scopes", e.Scopes)
	}
	if e.Error != "" {
		ev = ev.Str("error", e.Error).Str("error_description", e.ErrorDescription)
	}
	ev.Msg(e.Message)
}
