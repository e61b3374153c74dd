//go:build !tensorrt || !cgo

package trt

import (
	"errors"
	"testing"
)

func TestNewWithoutTensorRT(t *testing.T) {
	rt, err := New()
	if !errors.Is(err, ErrTensorRTRequired) {
		t.Fatalf("New() Fehler = %v, erwartet %v", err, ErrTensorRTRequired)
	}
	if rt != nil {
		t.Errorf("New() = %v, erwartet nil", rt)
	}
}
