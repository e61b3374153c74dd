// MODUL: onnx/model
// ZWECK: Ergebnis-Typen der ONNX-Modellinspektion
// INPUT: keine
// OUTPUT: Model, ValueInfo, Dim, ElemType
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Enum-Werte folgen TensorProto.DataType aus onnx.proto

package onnx

import (
	"fmt"
	"strings"
)

// ElemType ist der Element-Datentyp eines Tensors (TensorProto.DataType)
type ElemType int32

const (
	ElemUndefined ElemType = 0
	ElemFloat     ElemType = 1
	ElemUint8     ElemType = 2
	ElemInt8      ElemType = 3
	ElemUint16    ElemType = 4
	ElemInt16     ElemType = 5
	ElemInt32     ElemType = 6
	ElemInt64     ElemType = 7
	ElemString    ElemType = 8
	ElemBool      ElemType = 9
	ElemFloat16   ElemType = 10
	ElemDouble    ElemType = 11
	ElemUint32    ElemType = 12
	ElemUint64    ElemType = 13
	ElemBFloat16  ElemType = 16
)

var elemNames = map[ElemType]string{
	ElemUndefined: "undefined",
	ElemFloat:     "float32",
	ElemUint8:     "uint8",
	ElemInt8:      "int8",
	ElemUint16:    "uint16",
	ElemInt16:     "int16",
	ElemInt32:     "int32",
	ElemInt64:     "int64",
	ElemString:    "string",
	ElemBool:      "bool",
	ElemFloat16:   "float16",
	ElemDouble:    "float64",
	ElemUint32:    "uint32",
	ElemUint64:    "uint64",
	ElemBFloat16:  "bfloat16",
}

func (e ElemType) String() string {
	if s, ok := elemNames[e]; ok {
		return s
	}
	return fmt.Sprintf("elem(%d)", int32(e))
}

// Dim ist eine Tensor-Dimension: fest (Value > 0) oder symbolisch (Param)
type Dim struct {
	Value int64
	Param string
}

// Known meldet ob die Dimension einen festen Wert hat
func (d Dim) Known() bool {
	return d.Value > 0
}

func (d Dim) String() string {
	switch {
	case d.Known():
		return fmt.Sprintf("%d", d.Value)
	case d.Param != "":
		return d.Param
	default:
		return "?"
	}
}

// ValueInfo beschreibt einen Graph-Input oder -Output
type ValueInfo struct {
	Name     string
	ElemType ElemType
	Dims     []Dim
}

// ShapeString formatiert die Dimensionen als [1,3,640,640]
func (v ValueInfo) ShapeString() string {
	parts := make([]string, len(v.Dims))
	for i, d := range v.Dims {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Model enthaelt die fuer den Engine-Build relevanten Metadaten eines Modells
type Model struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string

	// Opsets bildet Domain auf Version ab, "" ist die Standard-Domain ai.onnx
	Opsets map[string]int64

	Inputs       []ValueInfo
	Outputs      []ValueInfo
	Initializers map[string]struct{}

	// OpCounts zaehlt Knoten pro op_type im Hauptgraphen
	OpCounts map[string]int
}

// GraphInputs gibt die echten Inputs zurueck, also ohne Initializer,
// die aeltere Exporter zusaetzlich als Graph-Input listen
func (m *Model) GraphInputs() []ValueInfo {
	var inputs []ValueInfo
	for _, in := range m.Inputs {
		if _, ok := m.Initializers[in.Name]; ok {
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// PrimaryInput gibt den ersten echten Graph-Input zurueck
func (m *Model) PrimaryInput() (ValueInfo, bool) {
	inputs := m.GraphInputs()
	if len(inputs) == 0 {
		return ValueInfo{}, false
	}
	return inputs[0], true
}

// IsQuantized meldet ob der Graph QuantizeLinear/DequantizeLinear Knoten enthaelt
func (m *Model) IsQuantized() bool {
	return m.OpCounts["QuantizeLinear"] > 0 || m.OpCounts["DequantizeLinear"] > 0
}

// NodeCount gibt die Anzahl der Knoten im Hauptgraphen zurueck
func (m *Model) NodeCount() int {
	var n int
	for _, c := range m.OpCounts {
		n += c
	}
	return n
}
