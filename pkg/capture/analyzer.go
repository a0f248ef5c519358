package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-drift/scan/pkg/errors"
	"github.com/go-drift/scan/pkg/logging"
)

// ErrDecodeFailed marks a recoverable decoder failure.
var ErrDecodeFailed = stderrors.New("capture: decode failed")

// Analyzer consumes frames from a live preview and runs at most one decode
// at a time. Analyze never blocks on the decoder.
type Analyzer struct {
	decoder Decoder
	session *Session
	ctx     context.Context
	log     zerolog.Logger
	now     func() time.Time

	onResult func(Result)
	onZoom   func(float64)
	onError  func(error)

	stopOnResult bool
	alive        atomic.Bool
	delivered    atomic.Bool

	// startMu orders decode starts against Stop, so Wait after Stop sees
	// every started attempt.
	startMu sync.Mutex
	wg      sync.WaitGroup
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithSession shares an existing session instead of allocating one.
func WithSession(s *Session) AnalyzerOption {
	return func(a *Analyzer) { a.session = s }
}

// WithResultHandler sets the callback for decoded results. It runs on the
// decode goroutine; UI code should dispatch from it.
func WithResultHandler(fn func(Result)) AnalyzerOption {
	return func(a *Analyzer) { a.onResult = fn }
}

// WithZoomHandler sets the callback for decoder zoom suggestions.
func WithZoomHandler(fn func(float64)) AnalyzerOption {
	return func(a *Analyzer) { a.onZoom = fn }
}

// WithErrorHandler sets the callback for recoverable decode failures.
func WithErrorHandler(fn func(error)) AnalyzerOption {
	return func(a *Analyzer) { a.onError = fn }
}

// WithStopOnResult makes the analyzer deliver only its first result.
func WithStopOnResult(stop bool) AnalyzerOption {
	return func(a *Analyzer) { a.stopOnResult = stop }
}

// WithContext sets the context passed to the decoder. Decodes are not
// canceled by Stop; they run to completion and are then discarded.
func WithContext(ctx context.Context) AnalyzerOption {
	return func(a *Analyzer) { a.ctx = ctx }
}

// NewAnalyzer creates a running analyzer around decoder.
func NewAnalyzer(decoder Decoder, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		decoder:      decoder,
		ctx:          context.Background(),
		log:          logging.For("capture"),
		now:          time.Now,
		stopOnResult: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.session == nil {
		a.session = &Session{}
	}
	a.alive.Store(true)
	return a
}

// Session returns the analyzer's single-flight guard.
func (a *Analyzer) Session() *Session {
	return a.session
}

// Analyze accepts one frame from the pipeline. The frame is always closed:
// immediately if it is dropped, or after its decode attempt finishes.
func (a *Analyzer) Analyze(frame Frame) {
	if !a.alive.Load() || (a.stopOnResult && a.delivered.Load()) {
		framesTotal.WithLabelValues(outcomeStale).Inc()
		CloseFrame(frame)
		return
	}
	img, ok := frame.Image()
	if !ok {
		framesTotal.WithLabelValues(outcomeNoImage).Inc()
		CloseFrame(frame)
		return
	}
	if !a.session.TryAcquire() {
		framesTotal.WithLabelValues(outcomeDropped).Inc()
		CloseFrame(frame)
		return
	}

	// Image may block; Stop can land in between.
	a.startMu.Lock()
	if !a.alive.Load() {
		a.startMu.Unlock()
		a.session.Release()
		framesTotal.WithLabelValues(outcomeStale).Inc()
		CloseFrame(frame)
		return
	}
	a.wg.Add(1)
	a.startMu.Unlock()
	go a.decode(frame, img)
}

// decode runs one attempt. Release is the outermost deferred call so it
// happens on every exit path, including a decoder panic.
func (a *Analyzer) decode(frame Frame, img Image) {
	defer a.wg.Done()
	defer a.session.Release()
	defer CloseFrame(frame)
	defer errors.Recover("capture.analyze")

	start := time.Now()
	codes, err := a.decoder.Decode(a.ctx, img)
	decodeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		framesTotal.WithLabelValues(outcomeFailed).Inc()
		a.log.Debug().Err(err).Int64("frame", img.Handle).Msg("decode failed, waiting for next frame")
		if a.alive.Load() && a.onError != nil {
			a.onError(fmt.Errorf("%w: %w", ErrDecodeFailed, err))
		}
		return
	}

	result, zoom := newResult(codes, a.now())
	if !a.alive.Load() {
		framesTotal.WithLabelValues(outcomeStale).Inc()
		return
	}
	if zoom > 0 && a.onZoom != nil {
		a.onZoom(zoom)
	}
	if result.Empty() {
		framesTotal.WithLabelValues(outcomeEmpty).Inc()
		return
	}
	if a.stopOnResult && !a.delivered.CompareAndSwap(false, true) {
		framesTotal.WithLabelValues(outcomeStale).Inc()
		return
	}
	framesTotal.WithLabelValues(outcomeDecoded).Inc()
	a.log.Debug().Int("codes", len(result.Codes)).Msg("decoded frame")
	if a.onResult != nil {
		a.onResult(result)
	}
}

// Stop turns every later callback into a no-op. An attempt already running
// completes and releases the session, but its result is discarded.
func (a *Analyzer) Stop() {
	a.startMu.Lock()
	a.alive.Store(false)
	a.startMu.Unlock()
}

// Alive reports whether Stop has not been called.
func (a *Analyzer) Alive() bool {
	return a.alive.Load()
}

// Wait blocks until every started decode attempt has finished.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}

// CloseFrame closes frame and reports a failure through errors.Report.
// Frame implementations return close errors without reporting them.
func CloseFrame(frame Frame) {
	if err := frame.Close(); err != nil {
		errors.Report(&errors.ScanError{
			Op:   "capture.closeFrame",
			Kind: errors.KindPipeline,
			Err:  err,
		})
	}
}
