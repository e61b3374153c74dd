// MODUL: trt
// ZWECK: Anbindung des TensorRT Builders und ONNX-Parsers an builder.Runtime
// INPUT: builder.Runtime Aufrufe aus builder.Build
// OUTPUT: serialisierte Engine
// NEBENEFFEKTE: GPU-Speicher und CUDA-Kontext waehrend des Builds
// ABHAENGIGKEITEN: cbits/libtrtshim.a, libnvinfer, libnvonnxparser, libcudart (nur mit Build-Tag)
// HINWEISE: Ohne Build-Tag "tensorrt" (oder ohne cgo) liefert New ErrTensorRTRequired

// Package trt implementiert builder.Runtime gegen TensorRT.
//
// Die C++-Quellen liegen in cbits und werden mit make zu libtrtshim.a gebaut:
//
//	make -C trt/cbits
//	go build -tags tensorrt .
package trt

import "errors"

// ErrTensorRTRequired wird zurueckgegeben wenn ohne TensorRT gebaut wurde
var ErrTensorRTRequired = errors.New("trt: built without TensorRT support, rebuild with -tags tensorrt")

// Rueckgabewerte des Batch-Callbacks, identisch mit trtshim.h
const (
	batchEOF   = 0
	batchOK    = 1
	batchError = -1
)
