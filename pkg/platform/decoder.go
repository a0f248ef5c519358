package platform

import (
	"context"
	"fmt"

	"github.com/go-drift/scan/pkg/barcode"
	"github.com/go-drift/scan/pkg/capture"
)

const decoderChannelName = "scan/decoder"

// Decoder runs the native barcode engine on frames held by the camera
// pipeline. It satisfies capture.Decoder.
type Decoder struct {
	channel *MethodChannel
	formats []barcode.Symbology
}

// NewDecoder returns a decoder restricted to formats, or all formats when
// none are given.
func NewDecoder(formats ...barcode.Symbology) *Decoder {
	return &Decoder{channel: NewMethodChannel(decoderChannelName), formats: formats}
}

// Decode asks the native engine for every code in img. Only native frames
// (non-zero Handle) can be decoded here.
func (d *Decoder) Decode(ctx context.Context, img capture.Image) ([]barcode.Barcode, error) {
	if img.Handle == 0 {
		return nil, fmt.Errorf("%w: image has no native handle", ErrInvalidArguments)
	}
	args := map[string]any{
		"handle":   img.Handle,
		"width":    img.Width,
		"height":   img.Height,
		"rotation": img.RotationDegrees,
	}
	if len(d.formats) > 0 {
		names := make([]string, len(d.formats))
		for i, f := range d.formats {
			names[i] = string(f)
		}
		args["formats"] = names
	}

	result, err := d.channel.InvokeContext(ctx, "decode", args)
	if err != nil {
		return nil, err
	}
	return parseBarcodes(result)
}

func parseBarcodes(result any) ([]barcode.Barcode, error) {
	m := asFields(result)
	if m == nil {
		return nil, parseError(decoderChannelName, "DecodeResult", result)
	}
	raw := m.list("barcodes")
	codes := make([]barcode.Barcode, 0, len(raw))
	for _, item := range raw {
		bm := asFields(item)
		if bm == nil {
			return nil, parseError(decoderChannelName, "Barcode", item)
		}
		format := barcode.Symbology(bm.str("format"))
		if format == "" {
			format = barcode.Unknown
		}
		zoom, _ := bm.num("zoomRatio")
		codes = append(codes, barcode.Barcode{
			RawValue:       bm.str("rawValue"),
			Format:         format,
			ZoomSuggestion: zoom,
		})
	}
	return codes, nil
}
