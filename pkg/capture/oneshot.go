package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-drift/scan/pkg/errors"
)

// ErrBusy is returned by OneShot.Capture while a previous capture is still
// being decoded.
var ErrBusy = stderrors.New("capture: attempt already in flight")

// StillCamera takes a single photo.
type StillCamera interface {
	CaptureStill(ctx context.Context) (Frame, error)
}

// OneShot implements the capture-photo-then-decode mode.
type OneShot struct {
	camera  StillCamera
	decoder Decoder
	session *Session
	now     func() time.Time
}

// NewOneShot creates a one-shot scanner. A nil session allocates a new one.
func NewOneShot(camera StillCamera, decoder Decoder, session *Session) *OneShot {
	if session == nil {
		session = &Session{}
	}
	return &OneShot{camera: camera, decoder: decoder, session: session, now: time.Now}
}

// Capture takes one photo and decodes it. An image without codes returns an
// empty Result and a nil error. Decoder failures wrap ErrDecodeFailed.
func (o *OneShot) Capture(ctx context.Context) (Result, error) {
	if !o.session.TryAcquire() {
		return Result{}, ErrBusy
	}
	defer o.session.Release()

	frame, err := o.camera.CaptureStill(ctx)
	if err != nil {
		return Result{}, &errors.ScanError{Op: "capture.still", Kind: errors.KindPipeline, Err: err}
	}
	defer CloseFrame(frame)

	img, ok := frame.Image()
	if !ok {
		framesTotal.WithLabelValues(outcomeNoImage).Inc()
		return Result{}, nil
	}

	start := time.Now()
	codes, err := o.decoder.Decode(ctx, img)
	decodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		framesTotal.WithLabelValues(outcomeFailed).Inc()
		return Result{}, &errors.ScanError{
			Op:   "capture.oneshot",
			Kind: errors.KindDecode,
			Err:  fmt.Errorf("%w: %w", ErrDecodeFailed, err),
		}
	}

	result, _ := newResult(codes, o.now())
	if result.Empty() {
		framesTotal.WithLabelValues(outcomeEmpty).Inc()
		return Result{}, nil
	}
	framesTotal.WithLabelValues(outcomeDecoded).Inc()
	return result, nil
}
