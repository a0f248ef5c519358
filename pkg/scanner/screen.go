// Package scanner assembles the scanner screens: the home screen with its
// scan trigger, theme toggle and history, and the scan screen that binds
// the camera and returns the first decoded result.
package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/go-drift/scan/pkg/camera"
	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/errors"
	"github.com/go-drift/scan/pkg/logging"
	"github.com/go-drift/scan/pkg/platform"
)

var (
	// ErrPipelineBind is returned when the camera pipeline cannot be bound.
	// The scan screen is unusable and closes.
	ErrPipelineBind = stderrors.New("scanner: camera pipeline could not be bound")

	// ErrClosed is returned when waiting on a closed scan screen.
	ErrClosed = stderrors.New("scanner: screen closed")

	// ErrNoCode is returned by a one-shot scan whose photo held no readable code.
	ErrNoCode = stderrors.New("scanner: no barcode found")

	// ErrWrongMode is returned by Capture on a continuous scan screen.
	ErrWrongMode = stderrors.New("scanner: capture requires one-shot mode")
)

// Scan modes.
const (
	ModeContinuous = "continuous"
	ModeOneShot    = "oneshot"
)

// Pipeline is the native camera as the scan screen drives it.
type Pipeline interface {
	camera.Device
	capture.StillCamera
	Bind(ctx context.Context, opts platform.BindOptions, sink func(capture.Frame)) error
	Unbind(ctx context.Context) error
}

// LifecycleSource reports app lifecycle changes.
type LifecycleSource interface {
	AddHandler(handler platform.LifecycleHandler) func()
}

// ScreenOptions configures a scan screen.
type ScreenOptions struct {
	Mode          string
	Lens          camera.Lens
	AnalysisWidth int
	AutoZoom      bool
	ZoomStep      float64
	// Lifecycle closes the screen when the app detaches. Optional.
	Lifecycle LifecycleSource
}

// ScanScreen owns a bound camera pipeline until Close.
type ScanScreen struct {
	id       string
	opts     ScreenOptions
	pipeline Pipeline
	controls *camera.Controller
	analyzer *capture.Analyzer
	oneShot  *capture.OneShot
	log      zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	results chan capture.Result

	closeOnce       sync.Once
	closeErr        error
	removeLifecycle func()
}

// OpenScanScreen binds pipeline and starts decoding with decoder.
// A bind failure wraps ErrPipelineBind.
func OpenScanScreen(ctx context.Context, pipeline Pipeline, decoder capture.Decoder, opts ScreenOptions) (*ScanScreen, error) {
	if opts.Mode == "" {
		opts.Mode = ModeContinuous
	}
	if opts.Mode != ModeContinuous && opts.Mode != ModeOneShot {
		return nil, fmt.Errorf("scanner: unknown mode %q", opts.Mode)
	}

	id := uuid.NewString()
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &ScanScreen{
		id:       id,
		opts:     opts,
		pipeline: pipeline,
		controls: camera.NewController(pipeline,
			camera.WithLens(opts.Lens),
			camera.WithZoomStep(opts.ZoomStep),
			camera.WithAutoZoom(opts.AutoZoom),
		),
		log:     logging.For("scanner").With().Str("screen", id).Logger(),
		ctx:     sctx,
		cancel:  cancel,
		results: make(chan capture.Result, 1),
	}

	session := &capture.Session{}
	sink := capture.CloseFrame
	if opts.Mode == ModeContinuous {
		s.analyzer = capture.NewAnalyzer(decoder,
			capture.WithSession(session),
			capture.WithContext(sctx),
			capture.WithStopOnResult(true),
			capture.WithResultHandler(s.deliver),
			capture.WithZoomHandler(s.applyZoom),
			capture.WithErrorHandler(func(err error) {
				s.log.Debug().Err(err).Msg("frame not decoded")
			}),
		)
		sink = s.analyzer.Analyze
	} else {
		s.oneShot = capture.NewOneShot(pipeline, decoder, session)
	}

	bindOpts := platform.BindOptions{Lens: opts.Lens, AnalysisWidth: opts.AnalysisWidth}
	if err := pipeline.Bind(ctx, bindOpts, sink); err != nil {
		cancel()
		if s.analyzer != nil {
			s.analyzer.Stop()
		}
		s.log.Error().Err(err).Msg("camera bind failed")
		return nil, &errors.ScanError{
			Op:   "scanner.bind",
			Kind: errors.KindPipeline,
			Err:  fmt.Errorf("%w: %w", ErrPipelineBind, err),
		}
	}

	if opts.Lifecycle != nil {
		s.removeLifecycle = opts.Lifecycle.AddHandler(func(state platform.LifecycleState) {
			if state == platform.LifecycleStateDetached {
				s.log.Info().Msg("app detached, closing scan screen")
				go s.Close()
			}
		})
	}
	s.log.Info().Str("mode", opts.Mode).Str("lens", opts.Lens.String()).Msg("scan screen opened")
	return s, nil
}

// ID identifies the screen in logs.
func (s *ScanScreen) ID() string {
	return s.id
}

// Mode returns the scan mode.
func (s *ScanScreen) Mode() string {
	return s.opts.Mode
}

// Controls returns the camera controls of the screen.
func (s *ScanScreen) Controls() *camera.Controller {
	return s.controls
}

func (s *ScanScreen) deliver(r capture.Result) {
	select {
	case s.results <- r:
	default:
		s.log.Warn().Msg("result dropped, previous result not consumed")
	}
}

func (s *ScanScreen) applyZoom(ratio float64) {
	changed, err := s.controls.ApplySuggestion(s.ctx, ratio)
	if err != nil {
		s.log.Warn().Err(err).Float64("ratio", ratio).Msg("auto zoom failed")
		return
	}
	if changed {
		s.log.Debug().Float64("ratio", ratio).Msg("auto zoom applied")
	}
}

// Result waits for the first decoded result. It returns ErrClosed if the
// screen closes first, or ctx's error.
func (s *ScanScreen) Result(ctx context.Context) (capture.Result, error) {
	select {
	case r := <-s.results:
		return r, nil
	case <-s.ctx.Done():
		// A result delivered just before Close still wins.
		select {
		case r := <-s.results:
			return r, nil
		default:
		}
		return capture.Result{}, ErrClosed
	case <-ctx.Done():
		return capture.Result{}, ctx.Err()
	}
}

// Capture takes one photo and decodes it. Only valid in one-shot mode.
// A photo without a readable code returns ErrNoCode.
func (s *ScanScreen) Capture(ctx context.Context) (capture.Result, error) {
	if s.oneShot == nil {
		return capture.Result{}, ErrWrongMode
	}
	if s.ctx.Err() != nil {
		return capture.Result{}, ErrClosed
	}
	r, err := s.oneShot.Capture(ctx)
	if err != nil {
		return capture.Result{}, err
	}
	if r.Empty() {
		return capture.Result{}, ErrNoCode
	}
	return r, nil
}

// SwitchCamera flips between back and front lens.
func (s *ScanScreen) SwitchCamera(ctx context.Context) (camera.Lens, error) {
	return s.controls.SwitchLens(ctx)
}

// ToggleTorch flips the torch.
func (s *ScanScreen) ToggleTorch(ctx context.Context) (bool, error) {
	return s.controls.ToggleTorch(ctx)
}

// ZoomIn zooms in one step.
func (s *ScanScreen) ZoomIn(ctx context.Context) (float64, error) {
	return s.controls.ZoomIn(ctx)
}

// ZoomOut zooms out one step.
func (s *ScanScreen) ZoomOut(ctx context.Context) (float64, error) {
	return s.controls.ZoomOut(ctx)
}

// SetZoom sets the zoom ratio, clamped to the supported range.
func (s *ScanScreen) SetZoom(ctx context.Context, ratio float64) (float64, error) {
	return s.controls.SetZoom(ctx, ratio)
}

// Close stops decoding, unbinds the camera and waits for an in-flight
// decode to finish. Later calls return the first result.
func (s *ScanScreen) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.removeLifecycle != nil {
			s.removeLifecycle()
		}

		var g errgroup.Group
		if s.analyzer != nil {
			s.analyzer.Stop()
			g.Go(func() error {
				s.analyzer.Wait()
				return nil
			})
		}
		g.Go(func() error {
			if err := s.pipeline.Unbind(context.Background()); err != nil {
				return &errors.ScanError{Op: "scanner.unbind", Kind: errors.KindPipeline, Err: err}
			}
			return nil
		})
		s.closeErr = g.Wait()
		s.log.Info().Msg("scan screen closed")
	})
	return s.closeErr
}
