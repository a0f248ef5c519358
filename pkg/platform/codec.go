// Package platform connects the scanner core to native code over named
// channels: method calls into the native camera, decoder, permission and
// preferences services, and event streams back from them (camera frames,
// permission changes, lifecycle).
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// MessageCodec converts values to and from the bytes exchanged with native
// code.
type MessageCodec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSONCodec is the wire format shared with the native plugins. Numbers
// decode as json.Number so 64-bit frame handles survive the round trip.
type JSONCodec struct{}

func (JSONCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode returns nil for empty input.
func (JSONCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DefaultCodec is the codec used by every channel.
var DefaultCodec MessageCodec = JSONCodec{}

// Channel errors.
var (
	// ErrChannelNotFound indicates the requested platform channel does not exist.
	ErrChannelNotFound = errors.New("platform channel not found")

	// ErrMethodNotFound indicates the method is not implemented on the other side.
	ErrMethodNotFound = errors.New("method not implemented")

	// ErrInvalidArguments indicates a call or event carried malformed data.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrPlatformUnavailable indicates no native bridge is installed or the
	// feature is missing on this device.
	ErrPlatformUnavailable = errors.New("platform feature unavailable")

	// ErrTimeout indicates the operation exceeded its deadline. For permission
	// requests, the user did not answer the dialog in time.
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates the operation was canceled via its context.
	ErrCanceled = errors.New("operation was canceled")

	// ErrClosed is returned when operating on a closed channel or stream.
	ErrClosed = errors.New("platform: channel closed")
)

// ChannelError is an error raised by native code, identified by Code
// ("no_torch", "camera_in_use", ...).
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError returns a ChannelError.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}

// hasCode reports whether err is a ChannelError with the given code.
func hasCode(err error, code string) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Code == code
}

// ctxErr maps a finished context to the package sentinels.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return ErrTimeout
	default:
		return ErrCanceled
	}
}
