// MODUL: formats_test
// ZWECK: Tests fuer Format-Erkennung
// INPUT: Test-Bytes mit verschiedenen Signaturen, Dateinamen
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing
// HINWEISE: Testet Magic-Byte- und Endungs-Erkennung fuer JPEG/PNG/WebP

package vision

import (
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected ImageFormat
	}{
		{
			name:     "JPEG Magic Bytes",
			data:     []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10},
			expected: FormatJPEG,
		},
		{
			name:     "PNG Magic Bytes",
			data:     []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A},
			expected: FormatPNG,
		},
		{
			name:     "WebP Magic Bytes",
			data:     []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x00, 0x00, 0x00, 'W', 'E', 'B', 'P'},
			expected: FormatWebP,
		},
		{
			name:     "RIFF ohne WEBP",
			data:     []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x00, 0x00, 0x00, 'W', 'A', 'V', 'E'},
			expected: FormatUnknown,
		},
		{
			name:     "Zu kurze Daten",
			data:     []byte{0xFF, 0xD8},
			expected: FormatUnknown,
		},
		{
			name:     "Leere Daten",
			data:     []byte{},
			expected: FormatUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectFormat(tt.data)
			if result != tt.expected {
				t.Errorf("DetectFormat() = %v, erwartet %v", result, tt.expected)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected ImageFormat
	}{
		{"train2017/000000000009.jpg", FormatJPEG},
		{"IMG_0001.JPEG", FormatJPEG},
		{"mask.png", FormatPNG},
		{"frame.WebP", FormatWebP},
		{"labels.txt", FormatUnknown},
		{"no_extension", FormatUnknown},
		{".jpg.bak", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FormatFromPath(tt.path); got != tt.expected {
				t.Errorf("FormatFromPath(%q) = %v, erwartet %v", tt.path, got, tt.expected)
			}
			if got := IsImagePath(tt.path); got != (tt.expected != FormatUnknown) {
				t.Errorf("IsImagePath(%q) = %v", tt.path, got)
			}
		})
	}
}
