//go:build !tensorrt || !cgo

// MODUL: trt/stub
// ZWECK: Stub wenn TensorRT nicht eingebunden ist
// HINWEISE: Gibt bei New immer ErrTensorRTRequired zurueck

package trt

import "github.com/trtforge/onnx2trt/builder"

// New Stub - gibt immer ErrTensorRTRequired zurueck
func New() (builder.Runtime, error) {
	return nil, ErrTensorRTRequired
}
