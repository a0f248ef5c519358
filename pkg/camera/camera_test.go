package camera

import (
	"context"
	"errors"
	"testing"
)

type fakeDevice struct {
	lens     Lens
	torch    bool
	hasTorch bool
	lo, hi   float64
	zoom     float64
	calls    []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{hasTorch: true, lo: 1, hi: 8, zoom: 1}
}

func (d *fakeDevice) SetLens(ctx context.Context, lens Lens) error {
	d.calls = append(d.calls, "lens:"+lens.String())
	d.lens = lens
	d.hasTorch = lens == LensBack
	return nil
}

func (d *fakeDevice) HasTorch(ctx context.Context) (bool, error) {
	return d.hasTorch, nil
}

func (d *fakeDevice) SetTorch(ctx context.Context, on bool) error {
	if on {
		d.calls = append(d.calls, "torch:on")
	} else {
		d.calls = append(d.calls, "torch:off")
	}
	d.torch = on
	return nil
}

func (d *fakeDevice) ZoomRange(ctx context.Context) (float64, float64, error) {
	return d.lo, d.hi, nil
}

func (d *fakeDevice) SetZoomRatio(ctx context.Context, ratio float64) error {
	d.zoom = ratio
	return nil
}

func TestParseLens(t *testing.T) {
	tests := []struct {
		in      string
		want    Lens
		wantErr bool
	}{
		{"back", LensBack, false},
		{"", LensBack, false},
		{"front", LensFront, false},
		{"side", LensBack, true},
	}
	for _, tt := range tests {
		got, err := ParseLens(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLens(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestSwitchLensTurnsTorchOff(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	c := NewController(dev)

	if on, err := c.ToggleTorch(ctx); err != nil || !on {
		t.Fatalf("ToggleTorch = %v, %v", on, err)
	}
	if _, err := c.SetZoom(ctx, 3); err != nil {
		t.Fatal(err)
	}

	lens, err := c.SwitchLens(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lens != LensFront {
		t.Errorf("lens = %v, want front", lens)
	}
	st := c.State()
	if st.Torch || dev.torch {
		t.Error("torch should be off after switching lens")
	}
	if st.Zoom != MinZoom {
		t.Errorf("zoom = %v, want %v", st.Zoom, MinZoom)
	}
	if _, err := c.ToggleTorch(ctx); !errors.Is(err, ErrNoTorch) {
		t.Errorf("front ToggleTorch = %v, want ErrNoTorch", err)
	}

	if lens, _ := c.SwitchLens(ctx); lens != LensBack {
		t.Errorf("second switch = %v, want back", lens)
	}
}

func TestSetZoomClamps(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	c := NewController(dev)

	tests := []struct {
		in, want float64
	}{
		{0.2, 1},
		{4, 4},
		{20, 8},
	}
	for _, tt := range tests {
		got, err := c.SetZoom(ctx, tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("SetZoom(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	dev.hi = 40
	if got, _ := c.SetZoom(ctx, 25); got != MaxZoom {
		t.Errorf("SetZoom beyond nominal max = %v, want %v", got, MaxZoom)
	}
}

func TestZoomSteps(t *testing.T) {
	ctx := context.Background()
	c := NewController(newFakeDevice(), WithZoomStep(1))

	if z, _ := c.ZoomIn(ctx); z != 2 {
		t.Errorf("ZoomIn = %v, want 2", z)
	}
	if z, _ := c.ZoomIn(ctx); z != 3 {
		t.Errorf("ZoomIn = %v, want 3", z)
	}
	if z, _ := c.ZoomOut(ctx); z != 2 {
		t.Errorf("ZoomOut = %v, want 2", z)
	}
	c.ZoomOut(ctx)
	if z, _ := c.ZoomOut(ctx); z != 1 {
		t.Errorf("ZoomOut at minimum = %v, want 1", z)
	}
}

func TestApplySuggestion(t *testing.T) {
	ctx := context.Background()
	dev := newFakeDevice()
	c := NewController(dev)

	if changed, _ := c.ApplySuggestion(ctx, 3); changed {
		t.Error("suggestion applied with auto zoom off")
	}

	c.SetAutoZoom(true)
	changed, err := c.ApplySuggestion(ctx, 3)
	if err != nil || !changed {
		t.Fatalf("ApplySuggestion = %v, %v", changed, err)
	}
	if dev.zoom != 3 {
		t.Errorf("device zoom = %v, want 3", dev.zoom)
	}
	if changed, _ := c.ApplySuggestion(ctx, 2); changed {
		t.Error("smaller suggestion must not zoom out")
	}
}
