//go:build tensorrt && cgo

// MODUL: trt/tensorrt
// ZWECK: builder.Runtime ueber die C-Schicht libtrtshim
// INPUT: Modell-Bytes, Flags, Profile, Calibrator
// OUTPUT: serialisierte Engine als []byte
// NEBENEFFEKTE: CGO-Aufrufe, GPU-Speicher fuer Kalibrier-Batches
// ABHAENGIGKEITEN: cbits/trtshim.h, libtrtshim.a, TensorRT, CUDA Runtime
// HINWEISE: Jedes Objekt MUSS mit Close freigegeben werden

package trt

/*
#cgo CFLAGS: -I${SRCDIR}/cbits
#cgo LDFLAGS: -L${SRCDIR}/cbits -ltrtshim -lnvonnxparser -lnvinfer -lcudart -lstdc++

#include <stdlib.h>
#include "trtshim.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"unsafe"

	"github.com/trtforge/onnx2trt/builder"
)

// ============================================================================
// Runtime
// ============================================================================

type trtRuntime struct{}

// New gibt die TensorRT Runtime zurueck
func New() (builder.Runtime, error) {
	return trtRuntime{}, nil
}

func (trtRuntime) Version() string {
	return C.GoString(C.trt_version())
}

func (trtRuntime) NewBuilder(severity builder.Severity) (builder.Builder, error) {
	var cerr *C.char
	b := C.trt_builder_create(C.int(severity), &cerr)
	if b == nil {
		return nil, takeError(cerr, "create builder")
	}
	return &trtBuilder{b: b, severity: severity}, nil
}

// takeError uebernimmt eine von der C-Schicht allozierte Meldung
func takeError(cerr *C.char, op string) error {
	if cerr == nil {
		return fmt.Errorf("trt: %s failed", op)
	}
	defer C.free(unsafe.Pointer(cerr))
	return fmt.Errorf("trt: %s: %s", op, C.GoString(cerr))
}

// ============================================================================
// Builder
// ============================================================================

type trtBuilder struct {
	b        *C.trt_builder
	severity builder.Severity
}

func (b *trtBuilder) CreateNetwork(flags builder.NetworkFlag) (builder.Network, error) {
	var cerr *C.char
	n := C.trt_network_create(b.b, C.uint32_t(flags), &cerr)
	if n == nil {
		return nil, takeError(cerr, "create network")
	}
	return &trtNetwork{n: n}, nil
}

func (b *trtBuilder) CreateParser(network builder.Network) (builder.Parser, error) {
	n, ok := network.(*trtNetwork)
	if !ok {
		return nil, errors.New("trt: network was not created by this runtime")
	}

	var cerr *C.char
	p := C.trt_parser_create(n.n, C.int(b.severity), &cerr)
	if p == nil {
		return nil, takeError(cerr, "create parser")
	}
	return &trtParser{p: p}, nil
}

func (b *trtBuilder) CreateConfig() (builder.Config, error) {
	var cerr *C.char
	c := C.trt_config_create(b.b, &cerr)
	if c == nil {
		return nil, takeError(cerr, "create builder config")
	}
	return &trtConfig{c: c}, nil
}

func (b *trtBuilder) CreateOptimizationProfile() (builder.OptimizationProfile, error) {
	var cerr *C.char
	p := C.trt_profile_create(b.b, &cerr)
	if p == nil {
		return nil, takeError(cerr, "create optimization profile")
	}
	return &trtProfile{p: p}, nil
}

func (b *trtBuilder) BuildSerializedNetwork(network builder.Network, config builder.Config) ([]byte, error) {
	n, ok := network.(*trtNetwork)
	if !ok {
		return nil, errors.New("trt: network was not created by this runtime")
	}
	c, ok := config.(*trtConfig)
	if !ok {
		return nil, errors.New("trt: config was not created by this runtime")
	}

	var (
		out  unsafe.Pointer
		size C.size_t
		cerr *C.char
	)
	rc := C.trt_build_serialized(b.b, n.n, c.c, &out, &size, &cerr)

	// Fehler aus den Calibrator-Callbacks haben Vorrang vor der TensorRT-Meldung
	if c.cal != nil && c.cal.err != nil {
		if out != nil {
			C.trt_free(out)
		}
		if cerr != nil {
			C.free(unsafe.Pointer(cerr))
		}
		return nil, fmt.Errorf("calibration: %w", c.cal.err)
	}

	if rc == 0 {
		return nil, takeError(cerr, "build serialized network")
	}
	defer C.trt_free(out)

	return C.GoBytes(out, C.int(size)), nil
}

func (b *trtBuilder) Close() error {
	C.trt_builder_destroy(b.b)
	b.b = nil
	return nil
}

// ============================================================================
// Network und Parser
// ============================================================================

type trtNetwork struct {
	n *C.trt_network
}

func (n *trtNetwork) SetLayerPrecision(name string, dt builder.DataType) (bool, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	switch rc := C.trt_network_set_layer_precision(n.n, cname, C.int(dt)); rc {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("trt: unsupported layer precision %s", dt)
	}
}

func (n *trtNetwork) Close() error {
	C.trt_network_destroy(n.n)
	n.n = nil
	return nil
}

type trtParser struct {
	p *C.trt_parser
}

func (p *trtParser) Parse(model []byte) bool {
	if len(model) == 0 {
		return false
	}
	return C.trt_parser_parse(p.p, unsafe.Pointer(&model[0]), C.size_t(len(model))) != 0
}

func (p *trtParser) Errors() []string {
	n := int(C.trt_parser_num_errors(p.p))
	messages := make([]string, 0, n)
	for i := range n {
		messages = append(messages, C.GoString(C.trt_parser_error(p.p, C.int(i))))
	}
	return messages
}

func (p *trtParser) Close() error {
	C.trt_parser_destroy(p.p)
	p.p = nil
	return nil
}

// ============================================================================
// Config und Optimierungsprofil
// ============================================================================

type trtConfig struct {
	c   *C.trt_config
	cal *calibratorState
}

func (c *trtConfig) SetMemoryPoolLimit(pool builder.MemoryPool, bytes uint64) {
	C.trt_config_set_pool_limit(c.c, C.int(pool), C.uint64_t(bytes))
}

func (c *trtConfig) SetFlags(flags builder.BuilderFlag) {
	C.trt_config_set_flags(c.c, C.uint32_t(flags))
}

func (c *trtConfig) SetInt8Calibrator(cal builder.Calibrator) error {
	if c.cal != nil {
		return errors.New("trt: calibrator already attached")
	}

	state := &calibratorState{cal: cal}
	state.handle = cgo.NewHandle(state)

	var cerr *C.char
	rc := C.trt_config_set_calibrator(c.c, C.uintptr_t(state.handle), C.int(cal.Algorithm()),
		C.int(cal.BatchSize()), C.size_t(cal.BatchBytes()), &cerr)
	if rc == 0 {
		state.handle.Delete()
		return takeError(cerr, "set int8 calibrator")
	}

	c.cal = state
	return nil
}

func (c *trtConfig) AddOptimizationProfile(profile builder.OptimizationProfile) error {
	p, ok := profile.(*trtProfile)
	if !ok {
		return errors.New("trt: profile was not created by this runtime")
	}

	var cerr *C.char
	if C.trt_config_add_profile(c.c, p.p, &cerr) == 0 {
		return takeError(cerr, "add optimization profile")
	}
	return nil
}

func (c *trtConfig) Close() error {
	// der Calibrator gehoert der Config und wird mit ihr zerstoert
	C.trt_config_destroy(c.c)
	c.c = nil
	if c.cal != nil {
		c.cal.handle.Delete()
		c.cal = nil
	}
	return nil
}

type trtProfile struct {
	p *C.trt_profile
}

func (p *trtProfile) SetShape(input string, r builder.ShapeRange) error {
	rank := len(r.Min)
	if rank == 0 || len(r.Opt) != rank || len(r.Max) != rank {
		return fmt.Errorf("trt: profile shapes for %s differ in rank", input)
	}

	dims := make([]C.int64_t, 0, 3*rank)
	for _, d := range [][]int64{r.Min, r.Opt, r.Max} {
		for _, v := range d {
			dims = append(dims, C.int64_t(v))
		}
	}

	cinput := C.CString(input)
	defer C.free(unsafe.Pointer(cinput))

	// C erhaelt Zeiger auf Go-Speicher nur fuer die Dauer des Aufrufs
	var cerr *C.char
	if C.trt_profile_set_shape(p.p, cinput, &dims[0], &dims[rank], &dims[2*rank], C.int(rank), &cerr) == 0 {
		return takeError(cerr, "set profile shape")
	}
	return nil
}
