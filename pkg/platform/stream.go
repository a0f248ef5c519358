package platform

import "github.com/go-drift/scan/pkg/errors"

// Stream is a typed view of an EventChannel. Every listener receives every
// parsed event; events that fail to parse are reported and skipped.
type Stream[T any] struct {
	eventChannel *EventChannel
	parser       func(data any) (T, error)
}

// NewStream wraps channel with parser.
func NewStream[T any](channel *EventChannel, parser func(data any) (T, error)) *Stream[T] {
	return &Stream[T]{eventChannel: channel, parser: parser}
}

// Listen subscribes handler and returns the function that unsubscribes it.
func (s *Stream[T]) Listen(handler func(T)) (unsubscribe func()) {
	name := s.eventChannel.Name()
	sub := s.eventChannel.Listen(EventHandler{
		OnEvent: func(data any) {
			val, err := s.parser(data)
			if err != nil {
				errors.Report(&errors.ScanError{
					Op:      "stream.parse",
					Kind:    errors.KindParsing,
					Channel: name,
					Err:     err,
				})
				return
			}
			handler(val)
		},
		OnError: func(err error) {
			errors.Report(&errors.ScanError{
				Op:      "stream.error",
				Kind:    errors.KindPlatform,
				Channel: name,
				Err:     err,
			})
		},
	})
	return sub.Cancel
}

// parseError builds the error reported for an event of the wrong shape.
func parseError(channel, dataType string, got any) error {
	return &errors.ParseError{Channel: channel, DataType: dataType, Got: got}
}
