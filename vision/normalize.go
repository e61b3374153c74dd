// MODUL: normalize
// ZWECK: Umwandlung von RGBA-Bildern in planare CHW float32 Tensoren
// INPUT: ImageInput
// OUTPUT: float32-Werte im Bereich [0,1], Kanalreihenfolge R, G, B
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Alpha wird verworfen, Werte werden nicht mit mean/std verschoben

package vision

import "fmt"

// Channels ist die Anzahl der Farbkanaele im Tensor
const Channels = 3

// TensorLen gibt die Anzahl der float32-Werte fuer ein CHW Bild zurueck
func (img *ImageInput) TensorLen() int {
	return Channels * img.Width * img.Height
}

// WriteCHW schreibt das Bild planar (R-Ebene, G-Ebene, B-Ebene) nach dst.
// Pixelwerte werden durch 255 geteilt. dst muss genau TensorLen() lang sein.
func WriteCHW(dst []float32, img *ImageInput) error {
	if len(dst) != img.TensorLen() {
		return fmt.Errorf("tensor laenge %d, erwartet %d", len(dst), img.TensorLen())
	}

	plane := img.Width * img.Height
	r, g, b := dst[:plane], dst[plane:2*plane], dst[2*plane:]

	pix := img.Image.Pix
	stride := img.Image.Stride
	idx := 0
	for y := range img.Height {
		row := pix[y*stride:]
		for x := range img.Width {
			o := x * 4
			r[idx] = float32(row[o]) / 255
			g[idx] = float32(row[o+1]) / 255
			b[idx] = float32(row[o+2]) / 255
			idx++
		}
	}

	return nil
}
