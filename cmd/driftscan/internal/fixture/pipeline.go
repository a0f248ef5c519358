package fixture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-drift/scan/pkg/camera"
	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/platform"
)

// ZoomMax is the top of the simulated zoom range.
const ZoomMax = 8.0

var (
	// ErrBound is returned by Bind while a sink is attached.
	ErrBound = errors.New("fixture: pipeline already bound")

	errFrameClosed = errors.New("fixture: frame already closed")
)

// Stats counts what happened to the frames a pipeline produced.
type Stats struct {
	Delivered int64
	Closed    int64
	Skipped   int64
}

// Pipeline plays a Source as a camera. Analysis frames are pushed by Run;
// stills are loaded on demand, cycling through the source.
type Pipeline struct {
	source   *Source
	interval time.Duration

	mu    sync.Mutex
	sink  func(capture.Frame)
	width int
	lens  camera.Lens
	torch bool
	zoom  float64
	still int

	bindOnce sync.Once
	bound    chan struct{}

	delivered atomic.Int64
	closed    atomic.Int64
	skipped   atomic.Int64
}

// NewPipeline returns a pipeline that pushes one frame per interval.
func NewPipeline(source *Source, interval time.Duration) *Pipeline {
	return &Pipeline{
		source:   source,
		interval: interval,
		lens:     camera.LensBack,
		zoom:     camera.MinZoom,
		bound:    make(chan struct{}),
	}
}

// Bind attaches the analysis sink.
func (p *Pipeline) Bind(ctx context.Context, opts platform.BindOptions, sink func(capture.Frame)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil {
		return ErrBound
	}
	p.sink = sink
	p.width = opts.AnalysisWidth
	p.lens = opts.Lens
	p.bindOnce.Do(func() { close(p.bound) })
	return nil
}

// Unbind detaches the sink. Frames produced afterwards are closed unseen.
func (p *Pipeline) Unbind(context.Context) error {
	p.mu.Lock()
	p.sink = nil
	p.mu.Unlock()
	return nil
}

// Run waits for the first Bind, then replays every image once. Images are
// decoded ahead of delivery by a separate goroutine.
func (p *Pipeline) Run(ctx context.Context) error {
	select {
	case <-p.bound:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	width := p.width
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	frames := make(chan *frame, 2)

	g.Go(func() error {
		defer close(frames)
		for i := range p.source.Len() {
			img, err := p.source.Load(i, width)
			if err != nil {
				return err
			}
			select {
			case frames <- &frame{img: img, p: p}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(max(p.interval, time.Millisecond))
		defer ticker.Stop()
		for f := range frames {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				f.Close()
				return ctx.Err()
			}
			p.push(f)
		}
		return nil
	})

	return g.Wait()
}

func (p *Pipeline) push(f *frame) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		p.skipped.Add(1)
		f.Close()
		return
	}
	p.delivered.Add(1)
	sink(f)
}

// CaptureStill loads the next image at full resolution.
func (p *Pipeline) CaptureStill(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	i := p.still % p.source.Len()
	p.still++
	p.mu.Unlock()

	img, err := p.source.Load(i, 0)
	if err != nil {
		return nil, err
	}
	p.delivered.Add(1)
	return &frame{img: img, p: p}, nil
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Delivered: p.delivered.Load(),
		Closed:    p.closed.Load(),
		Skipped:   p.skipped.Load(),
	}
}

// SetLens switches lenses. The front lens has no torch.
func (p *Pipeline) SetLens(_ context.Context, lens camera.Lens) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lens = lens
	if lens == camera.LensFront {
		p.torch = false
	}
	p.zoom = camera.MinZoom
	return nil
}

func (p *Pipeline) HasTorch(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lens == camera.LensBack, nil
}

func (p *Pipeline) SetTorch(_ context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lens != camera.LensBack {
		return camera.ErrNoTorch
	}
	p.torch = on
	return nil
}

func (p *Pipeline) ZoomRange(context.Context) (float64, float64, error) {
	return camera.MinZoom, ZoomMax, nil
}

func (p *Pipeline) SetZoomRatio(_ context.Context, ratio float64) error {
	p.mu.Lock()
	p.zoom = ratio
	p.mu.Unlock()
	return nil
}

// Zoom returns the last ratio set.
func (p *Pipeline) Zoom() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zoom
}

// Torch reports whether the torch is on.
func (p *Pipeline) Torch() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.torch
}

type frame struct {
	img    capture.Image
	p      *Pipeline
	closed atomic.Bool
}

func (f *frame) Image() (capture.Image, bool) {
	return f.img, f.img.Pixels != nil
}

func (f *frame) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return errFrameClosed
	}
	f.p.closed.Add(1)
	return nil
}
