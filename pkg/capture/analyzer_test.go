package capture

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-drift/scan/pkg/barcode"
	"github.com/go-drift/scan/pkg/errors"
)

type testFrame struct {
	handle  int64
	noImage bool
	closed  atomic.Int32
}

func (f *testFrame) Image() (Image, bool) {
	if f.noImage {
		return Image{}, false
	}
	return Image{Handle: f.handle, Width: 640, Height: 480}, true
}

func (f *testFrame) Close() error {
	f.closed.Add(1)
	return nil
}

// gatedDecoder blocks each Decode until a value is sent on release.
type gatedDecoder struct {
	started chan int64
	release chan decodeReply
}

type decodeReply struct {
	codes []barcode.Barcode
	err   error
}

func newGatedDecoder() *gatedDecoder {
	return &gatedDecoder{started: make(chan int64, 8), release: make(chan decodeReply)}
}

func (d *gatedDecoder) Decode(ctx context.Context, img Image) ([]barcode.Barcode, error) {
	d.started <- img.Handle
	r := <-d.release
	return r.codes, r.err
}

func waitStarted(t *testing.T, d *gatedDecoder) int64 {
	t.Helper()
	select {
	case h := <-d.started:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("decoder was not called")
		return 0
	}
}

func TestAnalyzerDropsFramesWhileInFlight(t *testing.T) {
	dec := newGatedDecoder()
	var results []Result
	var mu sync.Mutex
	a := NewAnalyzer(dec, WithResultHandler(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}))

	first := &testFrame{handle: 1}
	second := &testFrame{handle: 2}
	a.Analyze(first)
	waitStarted(t, dec)

	a.Analyze(second)
	if got := second.closed.Load(); got != 1 {
		t.Fatalf("dropped frame closed %d times, want 1", got)
	}
	if got := first.closed.Load(); got != 0 {
		t.Fatalf("in-flight frame closed early")
	}

	dec.release <- decodeReply{codes: []barcode.Barcode{{RawValue: "ABC123", Format: barcode.QRCode}}}
	a.Wait()

	if got := first.closed.Load(); got != 1 {
		t.Errorf("decoded frame closed %d times, want 1", got)
	}
	if a.Session().InFlight() {
		t.Error("session should be released after decode")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0].Text != "ABC123" {
		t.Fatalf("results = %+v, want one ABC123", results)
	}
}

func TestAnalyzerReleasesOnEveryExitPath(t *testing.T) {
	tests := []struct {
		name       string
		reply      decodeReply
		wantResult bool
		wantErr    bool
	}{
		{"payloads", decodeReply{codes: []barcode.Barcode{{RawValue: "ABC123"}, {RawValue: "XYZ789"}}}, true, false},
		{"empty", decodeReply{}, false, false},
		{"failure", decodeReply{err: stderrors.New("engine error")}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := newGatedDecoder()
			var gotResult *Result
			var gotErr error
			a := NewAnalyzer(dec,
				WithStopOnResult(false),
				WithResultHandler(func(r Result) { gotResult = &r }),
				WithErrorHandler(func(err error) { gotErr = err }),
			)
			frame := &testFrame{handle: 7}
			a.Analyze(frame)
			waitStarted(t, dec)
			dec.release <- tt.reply
			a.Wait()

			if a.Session().InFlight() {
				t.Error("session still in flight")
			}
			if frame.closed.Load() != 1 {
				t.Errorf("frame closed %d times, want 1", frame.closed.Load())
			}
			if (gotResult != nil) != tt.wantResult {
				t.Errorf("result delivered = %v, want %v", gotResult != nil, tt.wantResult)
			}
			if tt.wantResult && gotResult.Text != "ABC123\nXYZ789" {
				t.Errorf("Text = %q, want %q", gotResult.Text, "ABC123\nXYZ789")
			}
			if (gotErr != nil) != tt.wantErr {
				t.Errorf("error delivered = %v, want %v", gotErr, tt.wantErr)
			}
			if tt.wantErr && !stderrors.Is(gotErr, ErrDecodeFailed) {
				t.Errorf("error %v should wrap ErrDecodeFailed", gotErr)
			}

			// The session re-arms: the next frame is decoded.
			next := &testFrame{handle: 8}
			a.Analyze(next)
			waitStarted(t, dec)
			dec.release <- decodeReply{}
			a.Wait()
		})
	}
}

func TestAnalyzerReleasesWhenDecoderPanics(t *testing.T) {
	var panicked atomic.Bool
	defer errors.SetHandler(errors.SetHandler(panicHandler{fn: func() { panicked.Store(true) }}))

	a := NewAnalyzer(DecoderFunc(func(context.Context, Image) ([]barcode.Barcode, error) {
		panic("decoder bug")
	}))
	frame := &testFrame{handle: 1}
	a.Analyze(frame)
	a.Wait()

	if !panicked.Load() {
		t.Error("expected panic to be reported")
	}
	if a.Session().InFlight() {
		t.Error("session must be released after a decoder panic")
	}
	if frame.closed.Load() != 1 {
		t.Error("frame must be closed after a decoder panic")
	}
}

func TestAnalyzerStopDiscardsLateResults(t *testing.T) {
	dec := newGatedDecoder()
	var delivered atomic.Bool
	a := NewAnalyzer(dec, WithResultHandler(func(Result) { delivered.Store(true) }))

	frame := &testFrame{handle: 1}
	a.Analyze(frame)
	waitStarted(t, dec)
	a.Stop()
	dec.release <- decodeReply{codes: []barcode.Barcode{{RawValue: "late"}}}
	a.Wait()

	if delivered.Load() {
		t.Error("result delivered after Stop")
	}
	if a.Session().InFlight() {
		t.Error("session must still be released after Stop")
	}

	after := &testFrame{handle: 2}
	a.Analyze(after)
	if after.closed.Load() != 1 {
		t.Error("frames after Stop must be closed")
	}
	select {
	case <-dec.started:
		t.Error("decoder called after Stop")
	default:
	}
}

// slowFrame blocks in Image until unblock is closed.
type slowFrame struct {
	testFrame
	entered chan struct{}
	unblock chan struct{}
}

func (f *slowFrame) Image() (Image, bool) {
	close(f.entered)
	<-f.unblock
	return f.testFrame.Image()
}

func TestAnalyzerStopDuringImageStartsNoDecode(t *testing.T) {
	dec := newGatedDecoder()
	a := NewAnalyzer(dec)

	frame := &slowFrame{testFrame: testFrame{handle: 1}, entered: make(chan struct{}), unblock: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Analyze(frame)
	}()
	<-frame.entered
	a.Stop()
	a.Wait()
	close(frame.unblock)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Analyze did not return")
	}
	a.Wait()
	select {
	case <-dec.started:
		t.Error("decoder started after Stop and Wait")
	default:
	}
	if frame.closed.Load() != 1 {
		t.Errorf("closed = %d, want 1", frame.closed.Load())
	}
	if a.Session().InFlight() {
		t.Error("session must be idle after a discarded frame")
	}
}

func TestAnalyzerStopOnResultDeliversOnce(t *testing.T) {
	var count atomic.Int32
	a := NewAnalyzer(DecoderFunc(func(context.Context, Image) ([]barcode.Barcode, error) {
		return []barcode.Barcode{{RawValue: "X"}}, nil
	}), WithResultHandler(func(Result) { count.Add(1) }))

	for i := 0; i < 5; i++ {
		a.Analyze(&testFrame{handle: int64(i)})
		a.Wait()
	}
	if got := count.Load(); got != 1 {
		t.Errorf("results delivered = %d, want 1", got)
	}
}

func TestAnalyzerFrameWithoutImage(t *testing.T) {
	a := NewAnalyzer(DecoderFunc(func(context.Context, Image) ([]barcode.Barcode, error) {
		t.Error("decoder must not run without an image")
		return nil, nil
	}))
	frame := &testFrame{noImage: true}
	a.Analyze(frame)
	a.Wait()
	if frame.closed.Load() != 1 {
		t.Error("frame without image must be closed")
	}
	if a.Session().InFlight() {
		t.Error("session must stay idle")
	}
}

func TestAnalyzerKeepsEmptyPayloadWithoutZoomHint(t *testing.T) {
	var got Result
	var zoomed bool
	a := NewAnalyzer(DecoderFunc(func(context.Context, Image) ([]barcode.Barcode, error) {
		return []barcode.Barcode{{RawValue: "A"}, {}, {ZoomSuggestion: 2}, {RawValue: "B"}}, nil
	}), WithZoomHandler(func(float64) { zoomed = true }), WithResultHandler(func(r Result) { got = r }))
	a.Analyze(&testFrame{handle: 1})
	a.Wait()

	if len(got.Codes) != 3 {
		t.Fatalf("codes = %+v, want 3", got.Codes)
	}
	if got.Text != "A\n\nB" {
		t.Errorf("text = %q, want %q", got.Text, "A\n\nB")
	}
	if !zoomed {
		t.Error("zoom hint alongside readable codes should still apply")
	}
}

func TestAnalyzerZoomSuggestion(t *testing.T) {
	var zoom float64
	a := NewAnalyzer(DecoderFunc(func(context.Context, Image) ([]barcode.Barcode, error) {
		return []barcode.Barcode{{ZoomSuggestion: 2.5}, {ZoomSuggestion: 1.5}}, nil
	}), WithZoomHandler(func(z float64) { zoom = z }), WithResultHandler(func(Result) {
		t.Error("unreadable codes must not produce a result")
	}))
	a.Analyze(&testFrame{handle: 1})
	a.Wait()
	if zoom != 2.5 {
		t.Errorf("zoom = %v, want 2.5", zoom)
	}
}

type panicHandler struct{ fn func() }

func (h panicHandler) HandleError(*errors.ScanError) {}
func (h panicHandler) HandlePanic(*errors.PanicError) { h.fn() }
