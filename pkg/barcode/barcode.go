// Package barcode holds decoded barcode values and the formatting applied
// before a scan result is shown to the user.
package barcode

import "strings"

// Symbology identifies a barcode format reported by the decoder.
type Symbology string

const (
	QRCode     Symbology = "qr_code"
	Aztec      Symbology = "aztec"
	DataMatrix Symbology = "data_matrix"
	PDF417     Symbology = "pdf417"
	Code128    Symbology = "code_128"
	Code39     Symbology = "code_39"
	Code93     Symbology = "code_93"
	Codabar    Symbology = "codabar"
	EAN13      Symbology = "ean_13"
	EAN8       Symbology = "ean_8"
	ITF        Symbology = "itf"
	UPCA       Symbology = "upc_a"
	UPCE       Symbology = "upc_e"
	Unknown    Symbology = "unknown"
)

// Barcode is a single code found in an image.
type Barcode struct {
	// RawValue is the payload exactly as encoded.
	RawValue string
	// Format is the symbology of the code.
	Format Symbology
	// ZoomSuggestion is a zoom ratio the decoder recommends when the code
	// was detected but too small to read reliably. Zero means none.
	ZoomSuggestion float64
}

// Payloads returns the raw values of codes in decoder order.
func Payloads(codes []Barcode) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.RawValue)
	}
	return out
}

// Formats returns the distinct symbologies of codes in first-seen order.
func Formats(codes []Barcode) []Symbology {
	seen := make(map[Symbology]struct{}, len(codes))
	var out []Symbology
	for _, c := range codes {
		if _, ok := seen[c.Format]; ok {
			continue
		}
		seen[c.Format] = struct{}{}
		out = append(out, c.Format)
	}
	return out
}

// Format joins payloads with a single newline in the order given.
// Callers handle the empty case before formatting; an empty slice yields "".
func Format(payloads []string) string {
	return strings.Join(payloads, "\n")
}
