// runtime.go - Schnittstellen zum externen Netzwerk-Builder (TensorRT)
// Hauptfunktionen: Runtime, Builder, Network, Parser, Config, Calibrator
//
// Die Typen bilden nur ab, was der Build tatsaechlich aufruft. Die echte
// Implementierung liegt in package trt, Tests nutzen buildertest.
package builder

import (
	"fmt"
	"strings"
)

// DataType ist ein Tensor-Datentyp der Runtime
type DataType int

const (
	DataFloat DataType = iota
	DataHalf
	DataInt8
	DataInt32
	DataBool
	DataUint8
	DataFP8
	DataBFloat16
)

var dataTypeNames = [...]string{"float32", "float16", "int8", "int32", "bool", "uint8", "fp8", "bfloat16"}

func (d DataType) String() string {
	if int(d) >= 0 && int(d) < len(dataTypeNames) {
		return dataTypeNames[d]
	}
	return fmt.Sprintf("datatype(%d)", int(d))
}

// Size gibt die Groesse eines Elements in Bytes zurueck
func (d DataType) Size() int {
	switch d {
	case DataFloat, DataInt32:
		return 4
	case DataHalf, DataBFloat16:
		return 2
	default:
		return 1
	}
}

// NetworkFlag steuert die Erstellung der Netzwerk-Definition
type NetworkFlag uint32

const (
	NetworkExplicitBatch NetworkFlag = 1 << iota
	// NetworkExplicitPrecision markiert QAT-Netze mit eingebetteten Q/DQ-Skalen
	NetworkExplicitPrecision
)

func (f NetworkFlag) String() string {
	var names []string
	if f&NetworkExplicitBatch != 0 {
		names = append(names, "EXPLICIT_BATCH")
	}
	if f&NetworkExplicitPrecision != 0 {
		names = append(names, "EXPLICIT_PRECISION")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// BuilderFlag ist ein Bit der Builder-Konfiguration
type BuilderFlag uint32

const (
	BuilderFP16 BuilderFlag = 1 << iota
	BuilderINT8
	BuilderObeyPrecisionConstraints
)

var builderFlagNames = []struct {
	flag BuilderFlag
	name string
}{
	{BuilderFP16, "FP16"},
	{BuilderINT8, "INT8"},
	{BuilderObeyPrecisionConstraints, "OBEY_PRECISION_CONSTRAINTS"},
}

func (f BuilderFlag) String() string {
	var names []string
	for _, n := range builderFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Has meldet ob alle Bits von flag gesetzt sind
func (f BuilderFlag) Has(flag BuilderFlag) bool {
	return f&flag == flag
}

// MemoryPool benennt einen Speicherpool der Builder-Konfiguration
type MemoryPool int

const MemoryPoolWorkspace MemoryPool = 0

// Severity ist die Schwelle des Runtime-Loggers
type Severity int

const (
	SeverityInternalError Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
	SeverityVerbose
)

// Dims ist eine Tensor-Form
type Dims []int64

func (d Dims) String() string {
	parts := make([]string, len(d))
	for i, v := range d {
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// ShapeRange ist das (min, opt, max) Tripel eines Optimierungsprofils
type ShapeRange struct {
	Min, Opt, Max Dims
}

// Runtime erzeugt Builder. Version liefert "major.minor.patch".
type Runtime interface {
	Version() string
	NewBuilder(severity Severity) (Builder, error)
}

// Builder ist der Einstiegspunkt des externen Compilers. Alle erzeugten
// Objekte werden vom Aufrufer geschlossen, bevor der Builder geschlossen wird.
type Builder interface {
	CreateNetwork(flags NetworkFlag) (Network, error)
	CreateParser(network Network) (Parser, error)
	CreateConfig() (Config, error)
	CreateOptimizationProfile() (OptimizationProfile, error)

	// BuildSerializedNetwork blockiert bis die Engine fertig ist. Waehrend des
	// Aufrufs ruft die Runtime einen gesetzten Calibrator synchron auf.
	BuildSerializedNetwork(network Network, config Config) ([]byte, error)

	Close() error
}

// Network ist die vom Parser gefuellte Netzwerk-Definition
type Network interface {
	// SetLayerPrecision erzwingt die Rechengenauigkeit einer Schicht.
	// found ist false wenn keine Schicht diesen Namen hat.
	SetLayerPrecision(name string, dt DataType) (found bool, err error)
	Close() error
}

// Parser fuellt ein Network aus ONNX-Bytes
type Parser interface {
	// Parse gibt false zurueck wenn mindestens ein Fehler gemeldet wurde
	Parse(model []byte) bool
	Errors() []string
	Close() error
}

// Config ist die Builder-Konfiguration eines Builds
type Config interface {
	SetMemoryPoolLimit(pool MemoryPool, bytes uint64)
	SetFlags(flags BuilderFlag)
	SetInt8Calibrator(c Calibrator) error
	AddOptimizationProfile(p OptimizationProfile) error
	Close() error
}

// OptimizationProfile deklariert erlaubte Input-Formen
type OptimizationProfile interface {
	SetShape(input string, r ShapeRange) error
}

// Calibrator ist die Pull-Schnittstelle der int8-Kalibrierung. Die Runtime
// ruft NextBatch wiederholt auf, bis io.EOF kommt, und bestimmt selbst den Takt.
type Calibrator interface {
	BatchSize() int
	// BatchBytes ist die Groesse von Batch.Data in Bytes
	BatchBytes() int
	Algorithm() CalibrationAlgorithm
	NextBatch() (*Batch, error)
	// ReadCache gibt nil, nil zurueck wenn kein Cache vorhanden ist
	ReadCache() ([]byte, error)
	WriteCache(data []byte) error
}

// Batch ist ein vorverarbeiteter Kalibrier-Batch im Layout [N, C, H, W].
// Data ist zusammenhaengend und nur bis zum naechsten NextBatch gueltig.
type Batch struct {
	Index    int
	Shape    Dims
	DataType DataType
	Data     []byte
	Files    []string
}

// Engine ist die serialisierte, undurchsichtige Engine
type Engine []byte
