// MODUL: formats
// ZWECK: Bildformat-Erkennung fuer Kalibrierbilder
// INPUT: Bild-Bytes oder Dateiname
// OUTPUT: ImageFormat, Fehler bei ungueltigem Format
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Magic-Bytes entscheiden beim Dekodieren, die Endung nur bei der Auflistung

package vision

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
)

// ImageFormat repraesentiert ein unterstuetztes Bildformat
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWebP    ImageFormat = "webp"
	FormatUnknown ImageFormat = "unknown"
)

// Magic-Byte-Signaturen fuer Bildformate
var (
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	magicRIFF = []byte("RIFF")
	magicWebP = []byte("WEBP")
)

// ErrUnknownFormat wird zurueckgegeben wenn Format nicht erkannt wurde
var ErrUnknownFormat = errors.New("unbekanntes Bildformat")

// extensions ordnet Dateiendungen (klein geschrieben) einem Format zu
var extensions = map[string]ImageFormat{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".webp": FormatWebP,
}

// DetectFormat erkennt das Bildformat anhand der Magic-Bytes
func DetectFormat(data []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG
	case len(data) >= 12 && bytes.HasPrefix(data, magicRIFF) && bytes.Equal(data[8:12], magicWebP):
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// FormatFromPath bestimmt das Format anhand der Dateiendung (case-insensitive).
// Dateien ohne bekannte Endung ergeben FormatUnknown.
func FormatFromPath(path string) ImageFormat {
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatUnknown
}

// IsImagePath meldet ob die Datei als Kalibrierbild in Frage kommt
func IsImagePath(path string) bool {
	return FormatFromPath(path) != FormatUnknown
}

// String implementiert Stringer Interface
func (f ImageFormat) String() string {
	return string(f)
}
