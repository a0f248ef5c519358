// Package camera holds the secondary camera controls of the scan screen:
// lens switching, torch, and manual or automatic zoom.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/go-drift/scan/pkg/logging"
)

// Nominal zoom bounds. The device range narrows these further.
const (
	MinZoom         = 1.0
	MaxZoom         = 10.0
	DefaultZoomStep = 0.5
)

// ErrNoTorch is returned when the active lens has no flash unit.
var ErrNoTorch = errors.New("camera: torch not available")

// Lens selects a camera facing.
type Lens int

const (
	LensBack Lens = iota
	LensFront
)

func (l Lens) String() string {
	if l == LensFront {
		return "front"
	}
	return "back"
}

// ParseLens parses "back" or "front".
func ParseLens(s string) (Lens, error) {
	switch s {
	case "back", "":
		return LensBack, nil
	case "front":
		return LensFront, nil
	default:
		return LensBack, fmt.Errorf("camera: unknown lens %q", s)
	}
}

// Device is the bound camera as seen by the controller.
type Device interface {
	SetLens(ctx context.Context, lens Lens) error
	HasTorch(ctx context.Context) (bool, error)
	SetTorch(ctx context.Context, on bool) error
	// ZoomRange returns the ratios supported by the active lens.
	ZoomRange(ctx context.Context) (min, max float64, err error)
	SetZoomRatio(ctx context.Context, ratio float64) error
}

// State is a snapshot of the controller.
type State struct {
	Lens  Lens
	Torch bool
	Zoom  float64
}

// Controller tracks and drives the camera controls. It is safe for
// concurrent use; calls are serialized.
type Controller struct {
	mu       sync.Mutex
	dev      Device
	state    State
	step     float64
	autoZoom bool
	log      zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithZoomStep sets the ratio change applied by ZoomIn and ZoomOut.
func WithZoomStep(step float64) Option {
	return func(c *Controller) {
		if step > 0 {
			c.step = step
		}
	}
}

// WithAutoZoom enables ApplySuggestion.
func WithAutoZoom(enabled bool) Option {
	return func(c *Controller) { c.autoZoom = enabled }
}

// WithLens sets the lens the device was bound with.
func WithLens(l Lens) Option {
	return func(c *Controller) { c.state.Lens = l }
}

// NewController returns a controller for dev.
func NewController(dev Device, opts ...Option) *Controller {
	c := &Controller{
		dev:   dev,
		state: State{Lens: LensBack, Zoom: MinZoom},
		step:  DefaultZoomStep,
		log:   logging.For("camera"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current controls.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AutoZoom reports whether automatic zoom is enabled.
func (c *Controller) AutoZoom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoZoom
}

// SetAutoZoom enables or disables automatic zoom.
func (c *Controller) SetAutoZoom(enabled bool) {
	c.mu.Lock()
	c.autoZoom = enabled
	c.mu.Unlock()
}

// SwitchLens flips between the back and front camera. The torch is off and
// the zoom is reset after a switch.
func (c *Controller) SwitchLens(ctx context.Context) (Lens, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := LensFront
	if c.state.Lens == LensFront {
		next = LensBack
	}
	if c.state.Torch {
		if err := c.dev.SetTorch(ctx, false); err != nil {
			return c.state.Lens, err
		}
		c.state.Torch = false
	}
	if err := c.dev.SetLens(ctx, next); err != nil {
		return c.state.Lens, err
	}
	c.state.Lens = next
	c.state.Zoom = MinZoom
	c.log.Debug().Str("lens", next.String()).Msg("lens switched")
	return next, nil
}

// ToggleTorch turns the torch on or off and returns the new state.
func (c *Controller) ToggleTorch(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.dev.HasTorch(ctx)
	if err != nil {
		return c.state.Torch, err
	}
	if !ok {
		return false, ErrNoTorch
	}
	on := !c.state.Torch
	if err := c.dev.SetTorch(ctx, on); err != nil {
		return c.state.Torch, err
	}
	c.state.Torch = on
	return on, nil
}

// SetZoom applies ratio clamped to the supported range and returns the
// ratio actually set.
func (c *Controller) SetZoom(ctx context.Context, ratio float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setZoomLocked(ctx, ratio)
}

// ZoomIn increases the zoom by one step.
func (c *Controller) ZoomIn(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setZoomLocked(ctx, c.state.Zoom+c.step)
}

// ZoomOut decreases the zoom by one step.
func (c *Controller) ZoomOut(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setZoomLocked(ctx, c.state.Zoom-c.step)
}

// ApplySuggestion zooms to a decoder suggestion when automatic zoom is on
// and the suggestion is closer than the current zoom. It reports whether
// the zoom changed.
func (c *Controller) ApplySuggestion(ctx context.Context, ratio float64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.autoZoom || ratio <= c.state.Zoom {
		return false, nil
	}
	before := c.state.Zoom
	after, err := c.setZoomLocked(ctx, ratio)
	if err != nil {
		return false, err
	}
	return after != before, nil
}

func (c *Controller) setZoomLocked(ctx context.Context, ratio float64) (float64, error) {
	lo, hi, err := c.dev.ZoomRange(ctx)
	if err != nil {
		return c.state.Zoom, err
	}
	lo = max(lo, MinZoom)
	hi = min(hi, MaxZoom)
	if hi < lo {
		hi = lo
	}
	ratio = min(max(ratio, lo), hi)
	if ratio == c.state.Zoom {
		return ratio, nil
	}
	if err := c.dev.SetZoomRatio(ctx, ratio); err != nil {
		return c.state.Zoom, err
	}
	c.state.Zoom = ratio
	return ratio, nil
}
