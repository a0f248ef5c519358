package errors

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogHandler is an ErrorHandler that writes errors to the global zerolog logger.
type LogHandler struct {
	// Verbose enables stack traces in the output.
	Verbose bool
}

func (h *LogHandler) logger() *zerolog.Logger {
	l := log.With().Str("component", "errors").Logger()
	return &l
}

// HandleError logs a ScanError.
func (h *LogHandler) HandleError(err *ScanError) {
	if err == nil {
		return
	}
	ev := h.logger().Error().
		Err(err.Err).
		Str("op", err.Op).
		Str("kind", err.Kind.String())
	if err.Channel != "" {
		ev = ev.Str("channel", err.Channel)
	}
	if h.Verbose && err.StackTrace != "" {
		ev = ev.Str("stack", err.StackTrace)
	}
	ev.Msg("scan error")
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	ev := h.logger().Error().Interface("value", err.Value)
	if err.Op != "" {
		ev = ev.Str("op", err.Op)
	}
	if h.Verbose && err.StackTrace != "" {
		ev = ev.Str("stack", err.StackTrace)
	}
	ev.Msg("recovered panic")
}
