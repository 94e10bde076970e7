package dispatch

import (
	"errors"
	"log/slog"

	"github.com/luciancaetano/luster"
	"github.com/luciancaetano/luster/internal/metrics"
)

// ErrorHandler receives every error reported to a Sink.
type ErrorHandler func(err error)

// Sink is where failures that must not stop the session end up: listener
// errors and panics, cache sync failures and undecodable payloads.
type Sink struct {
	Logger  *slog.Logger
	Handler ErrorHandler
	Metrics *metrics.Metrics
}

// Report logs err, counts it and forwards it to the handler. A panicking
// handler is logged and otherwise ignored.
func (s *Sink) Report(err error) {
	if err == nil {
		return
	}

	logger := s.logger()
	var listenerErr *luster.ListenerError
	switch {
	case errors.As(err, &listenerErr):
		s.Metrics.ListenerFailed(listenerErr.Kind)
		logger.Error("listener failed",
			slog.String("kind", string(listenerErr.Kind)),
			slog.String("registration", listenerErr.Registration),
			slog.Any("error", listenerErr.Err))
	case errors.Is(err, luster.ErrMalformedFrame):
		s.Metrics.DecodeFailed()
		logger.Warn("undecodable frame", slog.Any("error", err))
	default:
		logger.Error("event processing failed", slog.Any("error", err))
	}

	if s.Handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("error handler panicked", slog.Any("panic", r))
		}
	}()
	s.Handler(err)
}

func (s *Sink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
