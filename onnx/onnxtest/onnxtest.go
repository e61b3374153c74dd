// Package onnxtest erzeugt minimale ONNX-Modelle fuer Tests.
package onnxtest

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Value beschreibt einen Graph-Input oder -Output. Dims enthaelt int64
// fuer feste und string fuer symbolische Dimensionen.
type Value struct {
	Name string
	Elem int32
	Dims []any
}

// Model beschreibt ein ModelProto mit einem Graphen
type Model struct {
	IRVersion    int64
	Producer     string
	Opsets       map[string]int64
	Inputs       []Value
	Outputs      []Value
	Initializers []string
	Ops          []string
}

// YOLO gibt ein Modell mit dem ueblichen Input "images" [1,3,640,640] zurueck
func YOLO() Model {
	return Model{
		IRVersion: 8,
		Producer:  "pytorch",
		Opsets:    map[string]int64{"": 17},
		Inputs:    []Value{{Name: "images", Elem: 1, Dims: []any{int64(1), int64(3), int64(640), int64(640)}}},
		Outputs:   []Value{{Name: "output0", Elem: 1, Dims: []any{int64(1), int64(84), int64(8400)}}},
		Ops:       []string{"Conv", "Sigmoid", "Mul", "Concat"},
	}
}

// Bytes serialisiert das Modell im Protobuf-Wire-Format
func (m Model) Bytes() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.IRVersion))
	if m.Producer != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.Producer)
	}

	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendBytes(b, m.graph())

	for domain, version := range m.Opsets {
		var o []byte
		if domain != "" {
			o = protowire.AppendTag(o, 1, protowire.BytesType)
			o = protowire.AppendString(o, domain)
		}
		o = protowire.AppendTag(o, 2, protowire.VarintType)
		o = protowire.AppendVarint(o, uint64(version))

		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, o)
	}
	return b
}

func (m Model) graph() []byte {
	var g []byte
	for i, op := range m.Ops {
		var n []byte
		n = protowire.AppendTag(n, 3, protowire.BytesType)
		n = protowire.AppendString(n, op+"_"+string(rune('a'+i%26)))
		n = protowire.AppendTag(n, 4, protowire.BytesType)
		n = protowire.AppendString(n, op)

		g = protowire.AppendTag(g, 1, protowire.BytesType)
		g = protowire.AppendBytes(g, n)
	}

	g = protowire.AppendTag(g, 2, protowire.BytesType)
	g = protowire.AppendString(g, "main_graph")

	for _, name := range m.Initializers {
		var t []byte
		// dims (1) und data_type (2) vor dem Namen, wie bei echten Exporten
		t = protowire.AppendTag(t, 1, protowire.VarintType)
		t = protowire.AppendVarint(t, 16)
		t = protowire.AppendTag(t, 2, protowire.VarintType)
		t = protowire.AppendVarint(t, 1)
		t = protowire.AppendTag(t, 8, protowire.BytesType)
		t = protowire.AppendString(t, name)

		g = protowire.AppendTag(g, 5, protowire.BytesType)
		g = protowire.AppendBytes(g, t)
	}

	for _, v := range m.Inputs {
		g = protowire.AppendTag(g, 11, protowire.BytesType)
		g = protowire.AppendBytes(g, v.bytes())
	}
	for _, v := range m.Outputs {
		g = protowire.AppendTag(g, 12, protowire.BytesType)
		g = protowire.AppendBytes(g, v.bytes())
	}
	return g
}

func (v Value) bytes() []byte {
	var shape []byte
	for _, d := range v.Dims {
		var dim []byte
		switch d := d.(type) {
		case int64:
			dim = protowire.AppendTag(dim, 1, protowire.VarintType)
			dim = protowire.AppendVarint(dim, uint64(d))
		case string:
			dim = protowire.AppendTag(dim, 2, protowire.BytesType)
			dim = protowire.AppendString(dim, d)
		}
		shape = protowire.AppendTag(shape, 1, protowire.BytesType)
		shape = protowire.AppendBytes(shape, dim)
	}

	var tensor []byte
	tensor = protowire.AppendTag(tensor, 1, protowire.VarintType)
	tensor = protowire.AppendVarint(tensor, uint64(v.Elem))
	tensor = protowire.AppendTag(tensor, 2, protowire.BytesType)
	tensor = protowire.AppendBytes(tensor, shape)

	var typ []byte
	typ = protowire.AppendTag(typ, 1, protowire.BytesType)
	typ = protowire.AppendBytes(typ, tensor)

	var vi []byte
	vi = protowire.AppendTag(vi, 1, protowire.BytesType)
	vi = protowire.AppendString(vi, v.Name)
	vi = protowire.AppendTag(vi, 2, protowire.BytesType)
	vi = protowire.AppendBytes(vi, typ)
	return vi
}
