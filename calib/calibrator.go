// calibrator.go - Adapter vom Loader auf builder.Calibrator
// Hauptfunktionen: New, Calibrator
package calib

import (
	"github.com/trtforge/onnx2trt/builder"
)

// Calibrator liefert die Batches eines Loaders und verwaltet den Cache
type Calibrator struct {
	loader    *Loader
	cachePath string
	algorithm builder.CalibrationAlgorithm
}

var _ builder.Calibrator = (*Calibrator)(nil)

// New erstellt einen Calibrator. cachePath darf leer sein.
func New(loader *Loader, cachePath string, algorithm builder.CalibrationAlgorithm) *Calibrator {
	return &Calibrator{loader: loader, cachePath: cachePath, algorithm: algorithm}
}

// NewFromConfig erstellt Loader und Calibrator aus den Kalibrier-Parametern
func NewFromConfig(p builder.CalibParams, dt builder.DataType, workers int, letterbox bool) (*Calibrator, error) {
	algorithm, err := builder.ParseCalibrationMethod(p.Method)
	if err != nil {
		return nil, err
	}

	loader, err := NewLoader(Options{
		Dir:        p.ImageDir,
		BatchSize:  p.BatchSize,
		NumBatches: p.NumBatches,
		ImageSize:  p.ImageSize,
		DataType:   dt,
		Workers:    workers,
		Letterbox:  letterbox,
	})
	if err != nil {
		return nil, err
	}

	return New(loader, p.CachePath, algorithm), nil
}

func (c *Calibrator) BatchSize() int {
	return c.loader.BatchSize()
}

func (c *Calibrator) BatchBytes() int {
	return c.loader.BatchBytes()
}

func (c *Calibrator) Algorithm() builder.CalibrationAlgorithm {
	return c.algorithm
}

func (c *Calibrator) NextBatch() (*builder.Batch, error) {
	return c.loader.Next()
}

func (c *Calibrator) ReadCache() ([]byte, error) {
	return ReadCache(c.cachePath)
}

func (c *Calibrator) WriteCache(data []byte) error {
	return WriteCache(c.cachePath, data)
}
