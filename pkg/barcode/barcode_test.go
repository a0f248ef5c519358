package barcode

import (
	"reflect"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		payloads []string
		want     string
	}{
		{"single", []string{"ABC123"}, "ABC123"},
		{"two", []string{"ABC123", "XYZ789"}, "ABC123\nXYZ789"},
		{"order preserved", []string{"B", "A", "C"}, "B\nA\nC"},
		{"payload with newline", []string{"line1\nline2", "X"}, "line1\nline2\nX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.payloads); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.payloads, got, tt.want)
			}
		})
	}
}

func TestPayloadsAndFormats(t *testing.T) {
	codes := []Barcode{
		{RawValue: "https://example.com", Format: QRCode},
		{RawValue: "4006381333931", Format: EAN13},
		{RawValue: "second", Format: QRCode},
	}
	if got, want := Payloads(codes), []string{"https://example.com", "4006381333931", "second"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Payloads() = %v, want %v", got, want)
	}
	if got, want := Formats(codes), []Symbology{QRCode, EAN13}; !reflect.DeepEqual(got, want) {
		t.Errorf("Formats() = %v, want %v", got, want)
	}
	if got := Payloads(nil); len(got) != 0 {
		t.Errorf("Payloads(nil) = %v, want empty", got)
	}
}
