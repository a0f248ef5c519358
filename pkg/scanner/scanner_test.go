package scanner

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-drift/scan/internal/config"
	"github.com/go-drift/scan/pkg/barcode"
	"github.com/go-drift/scan/pkg/camera"
	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/denial"
	"github.com/go-drift/scan/pkg/errors"
	"github.com/go-drift/scan/pkg/gate"
	"github.com/go-drift/scan/pkg/platform"
)

type testFrame struct {
	handle int64
	closed atomic.Int32
}

func (f *testFrame) Image() (capture.Image, bool) {
	return capture.Image{Handle: f.handle, Width: 640, Height: 480}, true
}

func (f *testFrame) Close() error {
	f.closed.Add(1)
	return nil
}

type fakePipeline struct {
	mu       sync.Mutex
	sink     func(capture.Frame)
	bindErr  error
	unbinds  int
	still    *testFrame
	zoom     float64
	lens     camera.Lens
	torch    bool
	hasTorch bool
}

func (p *fakePipeline) Bind(ctx context.Context, opts platform.BindOptions, sink func(capture.Frame)) error {
	if p.bindErr != nil {
		return p.bindErr
	}
	p.mu.Lock()
	p.sink = sink
	p.lens = opts.Lens
	p.mu.Unlock()
	return nil
}

func (p *fakePipeline) Unbind(ctx context.Context) error {
	p.mu.Lock()
	p.unbinds++
	p.sink = nil
	p.mu.Unlock()
	return nil
}

func (p *fakePipeline) push(f capture.Frame) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink(f)
	}
}

func (p *fakePipeline) CaptureStill(ctx context.Context) (capture.Frame, error) {
	return p.still, nil
}

func (p *fakePipeline) SetLens(ctx context.Context, lens camera.Lens) error {
	p.lens = lens
	return nil
}

func (p *fakePipeline) HasTorch(ctx context.Context) (bool, error) { return p.hasTorch, nil }

func (p *fakePipeline) SetTorch(ctx context.Context, on bool) error {
	p.torch = on
	return nil
}

func (p *fakePipeline) ZoomRange(ctx context.Context) (float64, float64, error) { return 1, 10, nil }

func (p *fakePipeline) SetZoomRatio(ctx context.Context, ratio float64) error {
	p.mu.Lock()
	p.zoom = ratio
	p.mu.Unlock()
	return nil
}

// decoderByHandle returns the codes registered for a frame handle.
type decoderByHandle map[int64][]barcode.Barcode

func (d decoderByHandle) Decode(ctx context.Context, img capture.Image) ([]barcode.Barcode, error) {
	return d[img.Handle], nil
}

type fakeLifecycle struct {
	mu       sync.Mutex
	handlers []platform.LifecycleHandler
}

func (l *fakeLifecycle) AddHandler(h platform.LifecycleHandler) func() {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
	return func() {}
}

func (l *fakeLifecycle) emit(s platform.LifecycleState) {
	l.mu.Lock()
	hs := append([]platform.LifecycleHandler(nil), l.handlers...)
	l.mu.Unlock()
	for _, h := range hs {
		h(s)
	}
}

func TestOpenScanScreenBindFailure(t *testing.T) {
	p := &fakePipeline{bindErr: stderrors.New("camera in use")}
	_, err := OpenScanScreen(context.Background(), p, decoderByHandle{}, ScreenOptions{})
	if !stderrors.Is(err, ErrPipelineBind) {
		t.Fatalf("err = %v, want ErrPipelineBind", err)
	}
	if errors.KindOf(err) != errors.KindPipeline {
		t.Errorf("kind = %v, want pipeline", errors.KindOf(err))
	}
}

func TestScanScreenContinuousFirstResult(t *testing.T) {
	p := &fakePipeline{}
	dec := decoderByHandle{
		2: {{RawValue: "first", Format: barcode.QRCode}, {RawValue: "second", Format: barcode.QRCode}},
	}
	s, err := OpenScanScreen(context.Background(), p, dec, ScreenOptions{})
	if err != nil {
		t.Fatal(err)
	}

	empty := &testFrame{handle: 1}
	p.push(empty)
	// Wait for the empty attempt to finish before sending the next frame.
	deadline := time.Now().Add(2 * time.Second)
	for (empty.closed.Load() == 0 || s.analyzer.Session().InFlight()) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	hit := &testFrame{handle: 2}
	p.push(hit)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := s.Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Text != "first\nsecond" {
		t.Errorf("Text = %q", r.Text)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if p.unbinds != 1 {
		t.Errorf("unbinds = %d, want 1", p.unbinds)
	}
	if hit.closed.Load() != 1 || empty.closed.Load() != 1 {
		t.Errorf("frames closed %d/%d times, want 1/1", empty.closed.Load(), hit.closed.Load())
	}
	s.Close()
	if p.unbinds != 1 {
		t.Error("second Close must not unbind again")
	}
}

func TestScanScreenAutoZoom(t *testing.T) {
	p := &fakePipeline{}
	dec := decoderByHandle{1: {{ZoomSuggestion: 3}}}
	s, err := OpenScanScreen(context.Background(), p, dec, ScreenOptions{AutoZoom: true})
	if err != nil {
		t.Fatal(err)
	}
	f := &testFrame{handle: 1}
	p.push(f)
	deadline := time.Now().Add(2 * time.Second)
	for f.closed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Close()
	if got := s.Controls().State().Zoom; got != 3 {
		t.Errorf("zoom = %v, want 3", got)
	}
}

func TestScanScreenClosesOnDetach(t *testing.T) {
	p := &fakePipeline{}
	lc := &fakeLifecycle{}
	s, err := OpenScanScreen(context.Background(), p, decoderByHandle{}, ScreenOptions{Lifecycle: lc})
	if err != nil {
		t.Fatal(err)
	}
	lc.emit(platform.LifecycleStatePaused)
	lc.emit(platform.LifecycleStateDetached)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Result(ctx); !stderrors.Is(err, ErrClosed) {
		t.Fatalf("Result = %v, want ErrClosed", err)
	}
}

func TestScanScreenOneShot(t *testing.T) {
	p := &fakePipeline{still: &testFrame{handle: 9}}
	s, err := OpenScanScreen(context.Background(), p, decoderByHandle{}, ScreenOptions{Mode: ModeOneShot})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Capture(context.Background()); !stderrors.Is(err, ErrNoCode) {
		t.Errorf("Capture on empty photo = %v, want ErrNoCode", err)
	}
	if p.still.closed.Load() != 1 {
		t.Error("still frame not closed")
	}

	// Analysis frames in one-shot mode are returned immediately.
	f := &testFrame{handle: 4}
	p.push(f)
	if f.closed.Load() != 1 {
		t.Error("preview frame not closed")
	}
}

func TestScanScreenCaptureWrongMode(t *testing.T) {
	s, err := OpenScanScreen(context.Background(), &fakePipeline{}, decoderByHandle{}, ScreenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Capture(context.Background()); !stderrors.Is(err, ErrWrongMode) {
		t.Errorf("Capture = %v, want ErrWrongMode", err)
	}
}

type fakePermission struct {
	status gate.Status
}

func (p *fakePermission) Status(ctx context.Context) (gate.Status, error) { return p.status, nil }
func (p *fakePermission) ShouldShowRationale(ctx context.Context) (bool, error) {
	return p.status == gate.StatusDenied, nil
}
func (p *fakePermission) Request(ctx context.Context) (gate.Status, error) { return p.status, nil }
func (p *fakePermission) OpenSettings(ctx context.Context) error           { return nil }

func testConfig(t *testing.T) *config.Resolved {
	t.Helper()
	cfg := config.Defaults()
	cfg.App.ID = "com.example.scan"
	cfg.Storage.Backend = "memory"
	cfg.History.Limit = 5
	return &config.Resolved{Config: cfg, Root: t.TempDir()}
}

func TestHomeScanRecordsHistory(t *testing.T) {
	ctx := context.Background()
	p := &fakePipeline{}
	app, err := Open(ctx, testConfig(t), Deps{
		Permission: &fakePermission{status: gate.StatusGranted},
		Pipeline:   p,
		Decoder:    decoderByHandle{1: {{RawValue: "https://drift.dev", Format: barcode.QRCode}}},
		Lifecycle:  &fakeLifecycle{},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Feed frames until the screen is bound and a result is taken.
		for i := 0; i < 200; i++ {
			p.push(&testFrame{handle: 1})
			time.Sleep(5 * time.Millisecond)
			p.mu.Lock()
			unbound := p.unbinds > 0
			p.mu.Unlock()
			if unbound {
				return
			}
		}
	}()

	text, err := app.Home.Scan(ctx)
	<-done
	if err != nil {
		t.Fatal(err)
	}
	if text != "https://drift.dev" {
		t.Errorf("text = %q", text)
	}
	entries, err := app.Home.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Text != text {
		t.Errorf("history = %+v", entries)
	}
}

func TestHomeScanDeniedDoesNotOpenCamera(t *testing.T) {
	ctx := context.Background()
	p := &fakePipeline{}
	app, err := Open(ctx, testConfig(t), Deps{
		Permission: &fakePermission{status: gate.StatusDenied},
		Pipeline:   p,
		Decoder:    decoderByHandle{},
		Lifecycle:  &fakeLifecycle{},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	if _, err := app.Home.Scan(ctx); !stderrors.Is(err, gate.ErrPermissionDenied) {
		t.Fatalf("Scan = %v, want ErrPermissionDenied", err)
	}
	if p.sink != nil || p.unbinds != 0 {
		t.Error("camera must not be bound without permission")
	}
	if n, _ := app.Tracker.Get(ctx, denial.Camera); n != 1 {
		t.Errorf("denials = %d, want 1", n)
	}
}

func TestAppApplyConfig(t *testing.T) {
	ctx := context.Background()
	app, err := Open(ctx, testConfig(t), Deps{
		Permission: &fakePermission{status: gate.StatusGranted},
		Pipeline:   &fakePipeline{},
		Decoder:    decoderByHandle{},
		Lifecycle:  &fakeLifecycle{},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	next := testConfig(t)
	next.Permissions.Threshold = 4
	next.Scanner.Mode = ModeOneShot
	if err := app.ApplyConfig(next); err != nil {
		t.Fatal(err)
	}
	if app.Gate.Threshold() != 4 {
		t.Errorf("threshold = %d, want 4", app.Gate.Threshold())
	}
	if app.ScreenOptions().Mode != ModeOneShot {
		t.Error("scanner mode not applied")
	}

	mode, err := app.Home.ToggleTheme(ctx)
	if err != nil || mode == "" {
		t.Errorf("ToggleTheme = %v, %v", mode, err)
	}
}
