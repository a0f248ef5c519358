// Package errors provides structured error handling for the scanner.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindPlatform indicates a platform channel or native bridge error.
	KindPlatform
	// KindParsing indicates an event parsing failure.
	KindParsing
	// KindInit indicates an initialization error.
	KindInit
	// KindPermission indicates a permission request or check failure.
	KindPermission
	// KindDecode indicates a barcode decoding failure.
	KindDecode
	// KindPipeline indicates the camera pipeline could not be bound or driven.
	KindPipeline
	// KindStorage indicates a settings or history storage failure.
	KindStorage
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindPlatform:
		return "platform"
	case KindParsing:
		return "parsing"
	case KindInit:
		return "init"
	case KindPermission:
		return "permission"
	case KindDecode:
		return "decode"
	case KindPipeline:
		return "pipeline"
	case KindStorage:
		return "storage"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// ScanError is a failure with enough context to log or branch on: the
// dotted operation name ("gate.request", "capture.decode"), its kind, and
// the platform channel when one was involved.
type ScanError struct {
	Op         string
	Kind       ErrorKind
	Err        error
	Channel    string
	StackTrace string
	// Timestamp is set by Report when left zero.
	Timestamp time.Time
}

func (e *ScanError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s [%s] channel=%s: %v", e.Op, e.Kind, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// PanicError is a panic caught by Recover. Value is what was passed to panic.
type PanicError struct {
	Op         string
	Value      any
	StackTrace string
	Timestamp  time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ParseError reports channel data that did not have the expected shape.
type ParseError struct {
	Channel  string
	DataType string
	Got      any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s from channel %s: got %T", e.DataType, e.Channel, e.Got)
}

// KindOf returns the kind of the first ScanError in err's chain, or
// KindUnknown when there is none.
func KindOf(err error) ErrorKind {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// ErrorHandler receives everything passed to Report and caught by Recover.
// Implementations must be safe for concurrent use.
type ErrorHandler interface {
	HandleError(err *ScanError)
	HandlePanic(err *PanicError)
}
