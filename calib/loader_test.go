package calib

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/trtforge/onnx2trt/builder"
)

func writePNG(t *testing.T, dir, name string, w, h int, c color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// imageDir legt n Bilder mit unterschiedlicher Farbe an
func imageDir(t *testing.T, n int) string {
	t.Helper()

	dir := t.TempDir()
	for i := range n {
		v := uint8(i * 20)
		writePNG(t, dir, fmt.Sprintf("img_%02d.png", i), 12, 8, color.RGBA{R: v, G: 255 - v, B: 7, A: 255})
	}
	return dir
}

func float32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "b.png", 2, 2, color.White)
	writePNG(t, dir, "a.PNG", 2, 2, color.White)
	writePNG(t, dir, "c.jpeg", 2, 2, color.White)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	files, err := ListImages(dir)
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "a.PNG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.jpeg"),
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("Dateiliste falsch (-want +got):\n%s", diff)
	}
}

func TestListImagesMissingDir(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "missing"))

	var ioErr *builder.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestNewLoaderTooFewImages(t *testing.T) {
	dir := imageDir(t, 5)

	_, err := NewLoader(Options{Dir: dir, BatchSize: 2, NumBatches: 3, ImageSize: 8})

	var cerr *builder.ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "calib-img-dir", cerr.Field)
	require.Contains(t, cerr.Reason, "found 5 images")
}

func TestNewLoaderInvalidOptions(t *testing.T) {
	dir := imageDir(t, 2)

	cases := map[string]Options{
		"batch size":  {Dir: dir, BatchSize: 0, NumBatches: 1, ImageSize: 8},
		"num batches": {Dir: dir, BatchSize: 1, NumBatches: 0, ImageSize: 8},
		"image size":  {Dir: dir, BatchSize: 1, NumBatches: 1, ImageSize: -1},
		"data type":   {Dir: dir, BatchSize: 1, NumBatches: 1, ImageSize: 8, DataType: builder.DataInt8},
	}

	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLoader(opts)
			var cerr *builder.ConfigError
			require.ErrorAs(t, err, &cerr)
		})
	}
}

func TestLoaderNext(t *testing.T) {
	dir := imageDir(t, 7)
	l, err := NewLoader(Options{Dir: dir, BatchSize: 3, NumBatches: 2, ImageSize: 8, Letterbox: true})
	require.NoError(t, err)

	require.Len(t, l.Files(), 6)
	require.Equal(t, 3*3*8*8*4, l.BatchBytes())

	for i := range 2 {
		b, err := l.Next()
		require.NoError(t, err)
		require.Equal(t, i, b.Index)
		require.Equal(t, builder.Dims{3, 3, 8, 8}, b.Shape)
		require.Equal(t, builder.DataFloat, b.DataType)
		require.Len(t, b.Data, l.BatchBytes())
		require.Equal(t, []string{
			filepath.Join(dir, fmt.Sprintf("img_%02d.png", i*3)),
			filepath.Join(dir, fmt.Sprintf("img_%02d.png", i*3+1)),
			filepath.Join(dir, fmt.Sprintf("img_%02d.png", i*3+2)),
		}, b.Files)
	}

	for range 2 {
		_, err := l.Next()
		require.ErrorIs(t, err, io.EOF)
	}
}

func TestLoaderDeterministic(t *testing.T) {
	dir := imageDir(t, 8)

	collect := func(workers int) [][]byte {
		l, err := NewLoader(Options{Dir: dir, BatchSize: 4, NumBatches: 2, ImageSize: 16, Workers: workers, Letterbox: true})
		require.NoError(t, err)

		var out [][]byte
		for {
			b, err := l.Next()
			if errors.Is(err, io.EOF) {
				return out
			}
			require.NoError(t, err)
			// Data wird wiederverwendet
			out = append(out, append([]byte(nil), b.Data...))
		}
	}

	sequential := collect(1)
	require.Len(t, sequential, 2)
	require.Equal(t, sequential, collect(4))
	require.Equal(t, sequential, collect(1))
	require.NotEqual(t, sequential[0], sequential[1])
}

func TestLoaderPixelValues(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "red.png", 8, 4, color.RGBA{R: 255, A: 255})

	t.Run("stretch", func(t *testing.T) {
		l, err := NewLoader(Options{Dir: dir, BatchSize: 1, NumBatches: 1, ImageSize: 8})
		require.NoError(t, err)

		b, err := l.Next()
		require.NoError(t, err)

		v := float32s(b.Data)
		plane := 8 * 8
		for i := range plane {
			require.InDelta(t, 1.0, v[i], 1e-6, "R an %d", i)
			require.InDelta(t, 0.0, v[plane+i], 1e-6, "G an %d", i)
			require.InDelta(t, 0.0, v[2*plane+i], 1e-6, "B an %d", i)
		}
	})

	t.Run("letterbox", func(t *testing.T) {
		l, err := NewLoader(Options{Dir: dir, BatchSize: 1, NumBatches: 1, ImageSize: 8, Letterbox: true})
		require.NoError(t, err)

		b, err := l.Next()
		require.NoError(t, err)

		v := float32s(b.Data)
		gray := float32(114) / 255

		// oberste Zeile ist Rand, mittlere Zeile ist Bild
		require.InDelta(t, gray, v[0], 1e-6)
		require.InDelta(t, gray, v[64], 1e-6)
		require.InDelta(t, 1.0, v[4*8+3], 1e-6)
		require.InDelta(t, 0.0, v[64+4*8+3], 1e-6)
	})
}

func TestLoaderHalfPrecision(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "red.png", 4, 4, color.RGBA{R: 255, A: 255})

	cases := map[builder.DataType]uint16{
		builder.DataHalf:     0x3C00,
		builder.DataBFloat16: 0x3F80,
	}

	for dt, one := range cases {
		t.Run(dt.String(), func(t *testing.T) {
			l, err := NewLoader(Options{Dir: dir, BatchSize: 1, NumBatches: 1, ImageSize: 4, DataType: dt})
			require.NoError(t, err)
			require.Equal(t, 3*4*4*2, l.BatchBytes())

			b, err := l.Next()
			require.NoError(t, err)
			require.Equal(t, dt, b.DataType)

			require.Equal(t, one, binary.LittleEndian.Uint16(b.Data[0:]))
			require.Equal(t, uint16(0), binary.LittleEndian.Uint16(b.Data[16*2:]))
		})
	}
}

func TestLoaderBrokenImage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 4, 4, color.White)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), []byte("not an image"), 0o644))

	l, err := NewLoader(Options{Dir: dir, BatchSize: 2, NumBatches: 1, ImageSize: 4, Workers: 2})
	require.NoError(t, err)

	_, err = l.Next()
	var ioErr *builder.IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, filepath.Join(dir, "b.jpg"), ioErr.Path)
}
