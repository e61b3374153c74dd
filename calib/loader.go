// loader.go - Kalibrierbilder auflisten und batchweise als Tensor liefern
// Hauptfunktionen: ListImages, NewLoader, Loader.Next
package calib

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/trtforge/onnx2trt/builder"
	"github.com/trtforge/onnx2trt/logutil"
	"github.com/trtforge/onnx2trt/vision"
)

// Options konfiguriert einen Loader
type Options struct {
	Dir        string
	BatchSize  int
	NumBatches int
	ImageSize  int

	// DataType ist der Datentyp des Netzwerk-Inputs: DataFloat, DataHalf oder DataBFloat16
	DataType builder.DataType

	// Workers begrenzt die parallel dekodierten Bilder pro Batch (Default 1)
	Workers int

	// Letterbox erhaelt das Seitenverhaeltnis, sonst wird gestreckt
	Letterbox bool
}

// Loader liefert Kalibrier-Batches in fester Reihenfolge. Er ist nicht
// neu startbar und nicht fuer parallele Aufrufe von Next gedacht.
type Loader struct {
	opts  Options
	files []string
	index int

	// pro Bild ein fester Abschnitt, unabhaengig von der Reihenfolge der Worker
	pixels []float32
	data   []byte
}

// ListImages gibt die Bilddateien in dir lexikalisch sortiert zurueck.
// Unterverzeichnisse werden nicht durchsucht.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &builder.IOError{Op: "list calibration images", Path: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !vision.IsImagePath(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}

	slices.Sort(files)
	return files, nil
}

// NewLoader listet die Bilder in opts.Dir und behaelt genau die ersten
// BatchSize*NumBatches. Zu wenige Bilder sind ein Konfigurationsfehler.
func NewLoader(opts Options) (*Loader, error) {
	switch {
	case opts.BatchSize <= 0:
		return nil, &builder.ConfigError{Field: "batch-size", Value: fmt.Sprint(opts.BatchSize), Reason: "must be positive"}
	case opts.NumBatches <= 0:
		return nil, &builder.ConfigError{Field: "num-calib-batch", Value: fmt.Sprint(opts.NumBatches), Reason: "must be positive"}
	case opts.ImageSize <= 0:
		return nil, &builder.ConfigError{Field: "img-size", Value: fmt.Sprint(opts.ImageSize), Reason: "must be positive"}
	}

	switch opts.DataType {
	case builder.DataFloat, builder.DataHalf, builder.DataBFloat16:
	default:
		return nil, &builder.ConfigError{Field: "input data type", Value: opts.DataType.String(), Reason: "calibration supports float, half and bfloat16 inputs"}
	}

	files, err := ListImages(opts.Dir)
	if err != nil {
		return nil, err
	}

	need := opts.BatchSize * opts.NumBatches
	if len(files) < need {
		return nil, &builder.ConfigError{
			Field:  "calib-img-dir",
			Value:  opts.Dir,
			Reason: fmt.Sprintf("found %d images, need batch-size x num-calib-batch = %d", len(files), need),
		}
	}

	opts.Workers = max(opts.Workers, 1)
	l := &Loader{
		opts:   opts,
		files:  slices.Clip(files[:need]),
		pixels: make([]float32, opts.BatchSize*vision.Channels*opts.ImageSize*opts.ImageSize),
	}
	l.data = make([]byte, len(l.pixels)*opts.DataType.Size())

	slog.Info("calibration images", "dir", opts.Dir, "found", len(files), "using", need, "batch_size", opts.BatchSize, "batches", opts.NumBatches)
	return l, nil
}

// Files gibt die verwendeten Bilder in Lieferreihenfolge zurueck
func (l *Loader) Files() []string {
	return slices.Clone(l.files)
}

// BatchSize ist die Anzahl Bilder pro Batch
func (l *Loader) BatchSize() int {
	return l.opts.BatchSize
}

// BatchBytes ist die Groesse eines Batches in Bytes
func (l *Loader) BatchBytes() int {
	return len(l.data)
}

// Shape ist die NCHW-Form eines Batches
func (l *Loader) Shape() builder.Dims {
	s := int64(l.opts.ImageSize)
	return builder.Dims{int64(l.opts.BatchSize), vision.Channels, s, s}
}

// Next laedt den naechsten Batch. Nach NumBatches Aufrufen gibt Next io.EOF
// zurueck. Data ist nur bis zum naechsten Aufruf gueltig.
func (l *Loader) Next() (*builder.Batch, error) {
	if l.index >= l.opts.NumBatches {
		return nil, io.EOF
	}

	start := l.index * l.opts.BatchSize
	files := l.files[start : start+l.opts.BatchSize : start+l.opts.BatchSize]
	per := vision.Channels * l.opts.ImageSize * l.opts.ImageSize

	var g errgroup.Group
	g.SetLimit(l.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			return l.preprocess(path, l.pixels[i*per:(i+1)*per])
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.encode()

	batch := &builder.Batch{
		Index:    l.index,
		Shape:    l.Shape(),
		DataType: l.opts.DataType,
		Data:     l.data,
		Files:    files,
	}

	logutil.Trace("calibration batch", "index", batch.Index, "first", files[0], "last", files[len(files)-1])
	if slog.Default().Enabled(context.TODO(), slog.LevelDebug) {
		l.logStats(batch.Index)
	}

	l.index++
	return batch, nil
}

func (l *Loader) preprocess(path string, dst []float32) error {
	img, err := vision.LoadImage(path)
	if err != nil {
		return &builder.IOError{Op: "load calibration image", Path: path, Err: err}
	}

	if l.opts.Letterbox {
		img, err = vision.Letterbox(img, l.opts.ImageSize, vision.PadGray)
	} else {
		img, err = vision.ResizeImage(img, l.opts.ImageSize, l.opts.ImageSize)
	}
	if err != nil {
		return &builder.IOError{Op: "resize calibration image", Path: path, Err: err}
	}

	return vision.WriteCHW(dst, img)
}

// encode schreibt die Pixel im Datentyp des Inputs nach l.data (little endian)
func (l *Loader) encode() {
	switch l.opts.DataType {
	case builder.DataHalf:
		for i, v := range l.pixels {
			binary.LittleEndian.PutUint16(l.data[i*2:], float16.Fromfloat32(v).Bits())
		}
	case builder.DataBFloat16:
		copy(l.data, bfloat16.EncodeFloat32(l.pixels))
	default:
		for i, v := range l.pixels {
			binary.LittleEndian.PutUint32(l.data[i*4:], math.Float32bits(v))
		}
	}
}

// logStats loggt Mittelwert und Standardabweichung pro Kanal
func (l *Loader) logStats(index int) {
	plane := l.opts.ImageSize * l.opts.ImageSize
	per := vision.Channels * plane
	values := make([][]float64, vision.Channels)
	for c := range values {
		values[c] = make([]float64, 0, plane*l.opts.BatchSize)
	}

	for n := range l.opts.BatchSize {
		img := l.pixels[n*per : (n+1)*per]
		for c := range vision.Channels {
			for _, v := range img[c*plane : (c+1)*plane] {
				values[c] = append(values[c], float64(v))
			}
		}
	}

	args := []any{"index", index}
	for c, name := range []string{"r", "g", "b"} {
		mean, std := stat.MeanStdDev(values[c], nil)
		args = append(args, name+"_mean", mean, name+"_std", std)
	}
	slog.Debug("calibration batch statistics", args...)
}
