//go:build tensorrt && cgo

// MODUL: trt/callbacks
// ZWECK: Von libtrtshim aufgerufene Go-Funktionen des int8-Calibrators
// INPUT: cgo.Handle auf calibratorState, Zielpuffer der C-Schicht
// OUTPUT: Batch-Daten und Cache-Inhalt
// NEBENEFFEKTE: liest Bilder und schreibt den Kalibrier-Cache ueber builder.Calibrator
// ABHAENGIGKEITEN: trtshim.h (Deklarationen)
// HINWEISE: Die Callbacks laufen synchron im Thread von trt_build_serialized

package trt

/*
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/cgo"
	"unsafe"

	"github.com/trtforge/onnx2trt/builder"
)

// calibratorState verbindet einen Calibrator mit dem C++-Objekt
type calibratorState struct {
	cal    builder.Calibrator
	handle cgo.Handle

	// erster Fehler eines Callbacks, TensorRT sieht nur false
	err error
}

func (s *calibratorState) fail(err error) {
	if s.err == nil {
		s.err = err
	}
	slog.Error("calibration callback failed", "error", err)
}

//export goCalibratorGetBatch
func goCalibratorGetBatch(h C.uintptr_t, dst unsafe.Pointer, size C.size_t) C.int {
	s := cgo.Handle(h).Value().(*calibratorState)

	batch, err := s.cal.NextBatch()
	if errors.Is(err, io.EOF) {
		return batchEOF
	}
	if err != nil {
		s.fail(err)
		return batchError
	}

	if len(batch.Data) != int(size) {
		s.fail(fmt.Errorf("batch %d has %d bytes, expected %d", batch.Index, len(batch.Data), int(size)))
		return batchError
	}

	copy(unsafe.Slice((*byte)(dst), int(size)), batch.Data)
	slog.Debug("calibration batch", "index", batch.Index, "shape", batch.Shape)
	return batchOK
}

//export goCalibratorReadCache
func goCalibratorReadCache(h C.uintptr_t, out *unsafe.Pointer, size *C.size_t) C.int {
	s := cgo.Handle(h).Value().(*calibratorState)

	data, err := s.cal.ReadCache()
	if err != nil {
		s.fail(err)
		return 0
	}
	if len(data) == 0 {
		return 0
	}

	// die C-Schicht gibt den Speicher mit free frei
	p := C.malloc(C.size_t(len(data)))
	C.memcpy(p, unsafe.Pointer(&data[0]), C.size_t(len(data)))
	*out = p
	*size = C.size_t(len(data))
	return 1
}

//export goCalibratorWriteCache
func goCalibratorWriteCache(h C.uintptr_t, data unsafe.Pointer, size C.size_t) C.int {
	s := cgo.Handle(h).Value().(*calibratorState)

	if err := s.cal.WriteCache(C.GoBytes(data, C.int(size))); err != nil {
		s.fail(err)
		return 0
	}
	return 1
}
