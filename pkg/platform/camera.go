package platform

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-drift/scan/pkg/camera"
	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/errors"
)

const (
	cameraChannelName = "scan/camera"
	cameraFramesName  = "scan/camera/frames"
)

var (
	cameraOnce    sync.Once
	cameraChannel *MethodChannel
	cameraFrames  *EventChannel
)

func cameraChannels() (*MethodChannel, *EventChannel) {
	cameraOnce.Do(func() {
		cameraChannel = NewMethodChannel(cameraChannelName)
		cameraFrames = NewEventChannel(cameraFramesName)
	})
	return cameraChannel, cameraFrames
}

// BindOptions configures the native pipeline.
type BindOptions struct {
	Lens camera.Lens
	// AnalysisWidth is the target width of analysis frames. Zero lets the
	// native side choose.
	AnalysisWidth int
}

// Camera drives the native camera pipeline: preview, analysis frames and
// still capture. It satisfies camera.Device and capture.StillCamera.
type Camera struct {
	channel *MethodChannel
	frames  *Stream[capture.Frame]

	mu          sync.Mutex
	unsubscribe func()
}

// NewCamera returns the camera bridge client.
func NewCamera() *Camera {
	ch, events := cameraChannels()
	c := &Camera{channel: ch}
	c.frames = NewStream(events, func(data any) (capture.Frame, error) {
		f, ok := parseFrame(ch, data)
		if !ok {
			return nil, parseError(cameraFramesName, "Frame", data)
		}
		return f, nil
	})
	return c
}

// Bind starts preview and analysis and delivers every analysis frame to
// sink on the event goroutine. sink owns each frame and must close it.
// Binding again replaces the previous sink.
func (c *Camera) Bind(ctx context.Context, opts BindOptions, sink func(capture.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFramesLocked()

	c.unsubscribe = c.frames.Listen(sink)
	_, err := c.channel.InvokeContext(ctx, "bind", map[string]any{
		"lens":          opts.Lens.String(),
		"analysisWidth": opts.AnalysisWidth,
	})
	if err != nil {
		c.cancelFramesLocked()
		return err
	}
	return nil
}

// Unbind stops the pipeline. Frames still in flight must be closed by
// their owners.
func (c *Camera) Unbind(ctx context.Context) error {
	c.mu.Lock()
	c.cancelFramesLocked()
	c.mu.Unlock()
	_, err := c.channel.InvokeContext(ctx, "unbind", nil)
	return err
}

func (c *Camera) cancelFramesLocked() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// CaptureStill takes a single full-resolution image.
func (c *Camera) CaptureStill(ctx context.Context) (capture.Frame, error) {
	result, err := c.channel.InvokeContext(ctx, "captureStill", nil)
	if err != nil {
		return nil, err
	}
	f, ok := parseFrame(c.channel, result)
	if !ok {
		return nil, parseError(cameraChannelName, "Frame", result)
	}
	return f, nil
}

func (c *Camera) SetLens(ctx context.Context, lens camera.Lens) error {
	_, err := c.channel.InvokeContext(ctx, "setLens", map[string]any{"lens": lens.String()})
	return err
}

func (c *Camera) HasTorch(ctx context.Context) (bool, error) {
	result, err := c.channel.InvokeContext(ctx, "hasTorch", nil)
	if err != nil {
		return false, err
	}
	return asFields(result).flag("available"), nil
}

func (c *Camera) SetTorch(ctx context.Context, on bool) error {
	_, err := c.channel.InvokeContext(ctx, "setTorch", map[string]any{"on": on})
	if hasCode(err, "no_torch") {
		return camera.ErrNoTorch
	}
	return err
}

func (c *Camera) ZoomRange(ctx context.Context) (float64, float64, error) {
	result, err := c.channel.InvokeContext(ctx, "zoomRange", nil)
	if err != nil {
		return 0, 0, err
	}
	m := asFields(result)
	lo, okLo := m.num("min")
	hi, okHi := m.num("max")
	if !okLo || !okHi {
		return 0, 0, parseError(cameraChannelName, "ZoomRange", result)
	}
	return lo, hi, nil
}

func (c *Camera) SetZoomRatio(ctx context.Context, ratio float64) error {
	_, err := c.channel.InvokeContext(ctx, "setZoom", map[string]any{"ratio": ratio})
	return err
}

// nativeFrame is a frame held by the native pipeline until closed.
type nativeFrame struct {
	channel  *MethodChannel
	img      capture.Image
	hasImage bool
	closed   atomic.Bool
}

func parseFrame(ch *MethodChannel, data any) (*nativeFrame, bool) {
	m := asFields(data)
	handle, ok := m.integer("handle")
	if !ok {
		return nil, false
	}
	return &nativeFrame{
		channel: ch,
		img: capture.Image{
			Handle:          handle,
			Width:           m.int("width"),
			Height:          m.int("height"),
			RotationDegrees: m.int("rotation"),
		},
		hasImage: m.flag("hasImage"),
	}, true
}

func (f *nativeFrame) Image() (capture.Image, bool) {
	return f.img, f.hasImage
}

// Close returns the frame to the pipeline. Later calls are no-ops.
func (f *nativeFrame) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if _, err := f.channel.Invoke("closeFrame", map[string]any{"handle": f.img.Handle}); err != nil {
		return &errors.ScanError{
			Op:      "camera.closeFrame",
			Kind:    errors.KindPipeline,
			Channel: cameraChannelName,
			Err:     err,
		}
	}
	return nil
}
