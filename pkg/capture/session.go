// Package capture runs barcode decode attempts against camera frames.
//
// A Session admits at most one decode attempt at a time. Frames that arrive
// while an attempt is in flight are closed and dropped rather than queued,
// so the camera pipeline never builds a backlog of pending decodes.
package capture

import (
	"fmt"
	"sync/atomic"

	"github.com/go-drift/scan/pkg/errors"
)

// Session is a single-flight guard for decode attempts on one scanning surface.
// The zero value is idle and ready to use.
type Session struct {
	inFlight atomic.Bool
}

// TryAcquire marks the session in flight and returns true if it was idle.
// It returns false if another attempt is already running; the caller must
// then drop its frame.
func (s *Session) TryAcquire() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

// Release ends the current attempt. It must run exactly once per successful
// TryAcquire. Releasing an idle session is reported and otherwise ignored.
func (s *Session) Release() {
	if !s.inFlight.CompareAndSwap(true, false) {
		errors.Report(&errors.ScanError{
			Op:   "capture.release",
			Kind: errors.KindUnknown,
			Err:  fmt.Errorf("release without matching acquire"),
		})
	}
}

// InFlight reports whether a decode attempt is currently running.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}
