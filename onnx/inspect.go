// MODUL: onnx/inspect
// ZWECK: Liest Metadaten aus einer ONNX-Datei ohne generierten Protobuf-Code
// INPUT: Modell-Bytes oder Dateipfad (.onnx)
// OUTPUT: *Model mit Inputs, Outputs, Opsets, Op-Zaehlern
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei InspectFile
// ABHAENGIGKEITEN: google.golang.org/protobuf/encoding/protowire
// HINWEISE: Nur der Hauptgraph wird gelesen, Subgraphen (If/Loop) werden uebersprungen

package onnx

import (
	"errors"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed wird zurueckgegeben wenn die Bytes kein lesbares ModelProto sind
var ErrMalformed = errors.New("onnx: fehlerhaftes modell")

// Feldnummern aus onnx.proto
const (
	modelIRVersion       protowire.Number = 1
	modelProducerName    protowire.Number = 2
	modelProducerVersion protowire.Number = 3
	modelGraph           protowire.Number = 7
	modelOpsetImport     protowire.Number = 8

	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	graphNode        protowire.Number = 1
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	nodeOpType protowire.Number = 4

	tensorName protowire.Number = 8

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensorType protowire.Number = 1

	tensorTypeElemType protowire.Number = 1
	tensorTypeShape    protowire.Number = 2

	shapeDim protowire.Number = 1

	dimValue protowire.Number = 1
	dimParam protowire.Number = 2
)

// InspectFile liest und inspiziert eine ONNX-Datei
func InspectFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m, err := Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Inspect dekodiert ein serialisiertes ModelProto
func Inspect(data []byte) (*Model, error) {
	m := &Model{
		Opsets:       make(map[string]int64),
		Initializers: make(map[string]struct{}),
		OpCounts:     make(map[string]int),
	}

	var hasGraph bool
	err := fields(data, func(f field) error {
		switch f.num {
		case modelIRVersion:
			m.IRVersion = int64(f.varint)
		case modelProducerName:
			m.ProducerName = string(f.bytes)
		case modelProducerVersion:
			m.ProducerVersion = string(f.bytes)
		case modelOpsetImport:
			if f.typ != protowire.BytesType {
				return nil
			}
			return parseOpset(m, f.bytes)
		case modelGraph:
			if f.typ != protowire.BytesType {
				return nil
			}
			hasGraph = true
			return parseGraph(m, f.bytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !hasGraph {
		return nil, fmt.Errorf("%w: kein graph", ErrMalformed)
	}

	return m, nil
}

func parseOpset(m *Model, b []byte) error {
	var domain string
	var version int64
	err := fields(b, func(f field) error {
		switch f.num {
		case opsetDomain:
			domain = string(f.bytes)
		case opsetVersion:
			version = int64(f.varint)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// ai.onnx ist ein Alias der Standard-Domain
	if domain == "ai.onnx" {
		domain = ""
	}
	m.Opsets[domain] = version
	return nil
}

func parseGraph(m *Model, b []byte) error {
	return fields(b, func(f field) error {
		if f.typ != protowire.BytesType {
			return nil
		}

		switch f.num {
		case graphNode:
			op, err := stringField(f.bytes, nodeOpType)
			if err != nil {
				return err
			}
			m.OpCounts[op]++
		case graphInitializer:
			name, err := stringField(f.bytes, tensorName)
			if err != nil {
				return err
			}
			m.Initializers[name] = struct{}{}
		case graphInput:
			vi, err := parseValueInfo(f.bytes)
			if err != nil {
				return err
			}
			m.Inputs = append(m.Inputs, vi)
		case graphOutput:
			vi, err := parseValueInfo(f.bytes)
			if err != nil {
				return err
			}
			m.Outputs = append(m.Outputs, vi)
		}
		return nil
	})
}

func parseValueInfo(b []byte) (ValueInfo, error) {
	var vi ValueInfo
	err := fields(b, func(f field) error {
		switch f.num {
		case valueInfoName:
			vi.Name = string(f.bytes)
		case valueInfoType:
			return fields(f.bytes, func(f field) error {
				if f.num != typeTensorType {
					return nil
				}
				return parseTensorType(&vi, f.bytes)
			})
		}
		return nil
	})
	return vi, err
}

func parseTensorType(vi *ValueInfo, b []byte) error {
	return fields(b, func(f field) error {
		switch f.num {
		case tensorTypeElemType:
			vi.ElemType = ElemType(int32(f.varint))
		case tensorTypeShape:
			vi.Dims = vi.Dims[:0]
			return fields(f.bytes, func(f field) error {
				if f.num != shapeDim {
					return nil
				}
				d, err := parseDim(f.bytes)
				if err != nil {
					return err
				}
				vi.Dims = append(vi.Dims, d)
				return nil
			})
		}
		return nil
	})
}

func parseDim(b []byte) (Dim, error) {
	var d Dim
	err := fields(b, func(f field) error {
		switch f.num {
		case dimValue:
			d.Value = int64(f.varint)
		case dimParam:
			d.Param = string(f.bytes)
		}
		return nil
	})
	return d, err
}

// stringField sucht das erste Vorkommen eines String-Felds in einer Nachricht
func stringField(b []byte, num protowire.Number) (string, error) {
	var s string
	var found bool
	err := fields(b, func(f field) error {
		if !found && f.num == num && f.typ == protowire.BytesType {
			s, found = string(f.bytes), true
		}
		return nil
	})
	return s, err
}

// field ist ein dekodiertes Protobuf-Feld. Je nach Wire-Typ ist varint oder bytes gesetzt.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

// fields iteriert ueber die Felder einer Nachricht. Fixed32/64 und Gruppen
// werden uebersprungen, da keines der gelesenen Felder diese Typen nutzt.
func fields(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: feld %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
