// MODUL: image
// ZWECK: Bild-Lade- und Skalierungsfunktionen fuer Kalibrierbilder
// INPUT: Dateipfad oder Bytes
// OUTPUT: ImageInput Struktur mit dekodiertem Bild
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei LoadImage
// ABHAENGIGKEITEN: golang.org/x/image/draw (extern), image/jpeg, image/png
// HINWEISE: Alle Bilder werden als RGBA konvertiert, WebP benoetigt x/image/webp

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	// Standard-Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PadGray ist die Randfarbe beim Letterboxing (YOLO-Konvention 114/114/114)
var PadGray = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten
type ImageInput struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format ImageFormat
}

// LoadImage laedt ein Bild von einem Dateipfad
func LoadImage(path string) (*ImageInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}

	img, err := LoadImageFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	format := DetectFormat(data)
	if format == FormatUnknown {
		return nil, ErrUnknownFormat
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}

	rgba := toRGBA(img)
	bounds := rgba.Bounds()

	return &ImageInput{
		Image:  rgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// toRGBA konvertiert ein beliebiges image.Image zu *image.RGBA mit Ursprung (0,0)
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// ResizeImage streckt ein Bild auf die angegebene Groesse (ohne Seitenverhaeltnis)
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{PadGray}, image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Over, nil)

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// Placement beschreibt wo das skalierte Bild im Letterbox-Quadrat liegt
type Placement struct {
	Scale         float64
	Width, Height int // skalierte Bildgroesse
	Left, Top     int // Rand links/oben
}

// LetterboxPlacement berechnet Skalierung und Rand fuer ein size x size Ziel.
// Das Bild wird so skaliert, dass die laengere Seite passt, und zentriert.
func LetterboxPlacement(srcW, srcH, size int) Placement {
	scale := math.Min(float64(size)/float64(srcW), float64(size)/float64(srcH))

	w := min(max(int(math.Round(float64(srcW)*scale)), 1), size)
	h := min(max(int(math.Round(float64(srcH)*scale)), 1), size)

	// -0.1 wie bei YOLO: bei ungeradem Rest landet das Extra-Pixel rechts/unten
	dw := float64(size-w) / 2
	dh := float64(size-h) / 2

	return Placement{
		Scale:  scale,
		Width:  w,
		Height: h,
		Left:   int(math.Round(dw - 0.1)),
		Top:    int(math.Round(dh - 0.1)),
	}
}

// Letterbox skaliert ein Bild mit erhaltenem Seitenverhaeltnis in ein
// size x size Quadrat und fuellt den Rest mit fill
func Letterbox(img *ImageInput, size int, fill color.Color) (*ImageInput, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ungueltige Groesse: %dx%d", size, size)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("leeres bild: %dx%d", img.Width, img.Height)
	}

	p := LetterboxPlacement(img.Width, img.Height, size)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{fill}, image.Point{}, draw.Src)

	target := image.Rect(p.Left, p.Top, p.Left+p.Width, p.Top+p.Height)
	draw.BiLinear.Scale(dst, target, img.Image, img.Image.Bounds(), draw.Over, nil)

	return &ImageInput{
		Image:  dst,
		Width:  size,
		Height: size,
		Format: img.Format,
	}, nil
}
