// Package fixture replays a directory of images as a camera so the full
// scan flow can run without a device.
//
// Each image may have sidecar files next to it:
//
//	name.txt  one payload per line; "zoom=R" lines are zoom hints
//	name.err  the decoder fails with the file's content
//
// An image without sidecars decodes to no codes.
package fixture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/go-drift/scan/pkg/barcode"
	"github.com/go-drift/scan/pkg/capture"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ErrNoFrames is returned for a directory without images.
var ErrNoFrames = errors.New("fixture: no images found")

// Source is an ordered list of fixture images.
type Source struct {
	dir   string
	paths []string
}

// Open lists the images in dir in name order.
func Open(dir string) (*Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExts, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	slices.Sort(paths)
	return &Source{dir: dir, paths: paths}, nil
}

// Len returns the number of images.
func (s *Source) Len() int {
	return len(s.paths)
}

// Path returns the image behind a frame handle. Handles start at 1.
func (s *Source) Path(handle int64) (string, bool) {
	i := int(handle) - 1
	if i < 0 || i >= len(s.paths) {
		return "", false
	}
	return s.paths[i], true
}

// Load decodes image i (0-based) and scales it to width, keeping the
// aspect ratio. width <= 0 or wider than the image keeps the original.
func (s *Source) Load(i, width int) (capture.Image, error) {
	path := s.paths[i]
	f, err := os.Open(path)
	if err != nil {
		return capture.Image{}, fmt.Errorf("fixture: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return capture.Image{}, fmt.Errorf("fixture: decode %s: %w", filepath.Base(path), err)
	}
	img := Scale(src, width)
	b := img.Bounds()
	return capture.Image{
		Handle: int64(i + 1),
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: img,
	}, nil
}

// Scale resizes src to width with bilinear sampling. Images already at or
// below width are returned as is.
func Scale(src image.Image, width int) image.Image {
	b := src.Bounds()
	if width <= 0 || b.Dx() <= width {
		return src
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Decoder answers decode requests from the sidecar files of a Source.
type Decoder struct {
	source *Source
}

// NewDecoder returns a decoder for source.
func NewDecoder(source *Source) *Decoder {
	return &Decoder{source: source}
}

func (d *Decoder) Decode(ctx context.Context, img capture.Image) ([]barcode.Barcode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := d.source.Path(img.Handle)
	if !ok {
		return nil, fmt.Errorf("fixture: unknown frame %d", img.Handle)
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))

	if msg, err := os.ReadFile(base + ".err"); err == nil {
		return nil, errors.New(strings.TrimSpace(string(msg)))
	}
	f, err := os.Open(base + ".txt")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseSidecar(f)
}

func parseSidecar(f *os.File) ([]barcode.Barcode, error) {
	var codes []barcode.Barcode
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if v, ok := strings.CutPrefix(line, "zoom="); ok {
			ratio, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("fixture: bad zoom hint %q: %w", v, err)
			}
			if ratio <= 0 {
				return nil, fmt.Errorf("fixture: zoom hint %q must be positive", v)
			}
			codes = append(codes, barcode.Barcode{Format: barcode.QRCode, ZoomSuggestion: ratio})
			continue
		}
		codes = append(codes, barcode.Barcode{RawValue: line, Format: barcode.QRCode})
	}
	return codes, sc.Err()
}
