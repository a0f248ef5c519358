package capture

import (
	"context"
	"image"
	"time"

	"github.com/go-drift/scan/pkg/barcode"
)

// Image is the input handed to a Decoder. Native frames are referenced by
// Handle; in-process sources may set Pixels instead.
type Image struct {
	Handle          int64
	Width           int
	Height          int
	RotationDegrees int
	Pixels          image.Image
}

// Frame is one image delivered by the camera pipeline. Every frame must be
// closed exactly once, whether it was decoded or dropped, or the pipeline
// stops delivering new frames.
type Frame interface {
	// Image returns the frame's image, or false if the pipeline delivered
	// a frame without image data.
	Image() (Image, bool)
	Close() error
}

// Decoder extracts barcodes from an image. An empty result means no code
// was found and is not an error.
type Decoder interface {
	Decode(ctx context.Context, img Image) ([]barcode.Barcode, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, img Image) ([]barcode.Barcode, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, img Image) ([]barcode.Barcode, error) {
	return f(ctx, img)
}

// Result is a successful decode with at least one code. Codes with an
// empty payload and a positive ZoomSuggestion are zoom hints and never
// appear in Codes; every other code is kept in decoder order.
type Result struct {
	// Text is the user-facing string built by barcode.Format.
	Text      string
	Codes     []barcode.Barcode
	ScannedAt time.Time
}

// Empty reports whether the result carries no codes.
func (r Result) Empty() bool {
	return len(r.Codes) == 0
}

// newResult splits decoder output into readable codes and the largest zoom
// hint among detected-but-unreadable codes.
func newResult(codes []barcode.Barcode, now time.Time) (Result, float64) {
	var readable []barcode.Barcode
	var zoom float64
	for _, c := range codes {
		if c.RawValue == "" && c.ZoomSuggestion > 0 {
			zoom = max(zoom, c.ZoomSuggestion)
			continue
		}
		readable = append(readable, c)
	}
	if len(readable) == 0 {
		return Result{}, zoom
	}
	return Result{
		Text:      barcode.Format(barcode.Payloads(readable)),
		Codes:     readable,
		ScannedAt: now,
	}, zoom
}
