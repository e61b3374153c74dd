// config.go - Haupt-Konfigurationsfunktionen fuer onnx2trt
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (ONNX2TRT_DEBUG)
// - Workspace: Groesse des TensorRT Workspace-Pools (ONNX2TRT_WORKSPACE)
// - ProfileBatch: Batch-Groessen des Optimierungsprofils (ONNX2TRT_PROFILE_BATCH)
// - InputName: Name des Haupt-Input-Tensors (ONNX2TRT_INPUT_NAME)
// - DecodeWorkers: Anzahl paralleler Bild-Decoder (ONNX2TRT_DECODE_WORKERS)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Feature-Flags und GPU-Variablen
// - config_utils.go: Utility-Funktionen und AsMap
package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/trtforge/onnx2trt/builder"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via ONNX2TRT_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ONNX2TRT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Workspace gibt das Limit des Workspace-Speicherpools in Bytes zurueck
// Konfigurierbar via ONNX2TRT_WORKSPACE
// Default: 2 GiB
var Workspace = Uint64("ONNX2TRT_WORKSPACE", builder.DefaultWorkspace)

// ProfileBatch gibt min/opt/max Batch-Groessen fuer das Optimierungsprofil zurueck
// Konfigurierbar via ONNX2TRT_PROFILE_BATCH (komma-separiert, z.B. "1,8,16")
// Ungueltige Werte fallen auf den Default zurueck
func ProfileBatch() [3]int64 {
	s := Var("ONNX2TRT_PROFILE_BATCH")
	if s == "" {
		return builder.DefaultProfileBatch
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		slog.Warn("invalid environment variable, using default", "key", "ONNX2TRT_PROFILE_BATCH", "value", s, "default", builder.DefaultProfileBatch)
		return builder.DefaultProfileBatch
	}

	var batch [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n <= 0 {
			slog.Warn("invalid environment variable, using default", "key", "ONNX2TRT_PROFILE_BATCH", "value", s, "default", builder.DefaultProfileBatch)
			return builder.DefaultProfileBatch
		}
		batch[i] = n
	}

	if batch[0] > batch[1] || batch[1] > batch[2] {
		slog.Warn("profile batch sizes must satisfy min <= opt <= max, using default", "value", s)
		return builder.DefaultProfileBatch
	}

	return batch
}

// InputName ueberschreibt den aus dem Modell gelesenen Input-Tensor Namen
// Konfigurierbar via ONNX2TRT_INPUT_NAME
var InputName = String("ONNX2TRT_INPUT_NAME")

// DecodeWorkers gibt die Anzahl paralleler Bild-Decoder pro Kalibrier-Batch zurueck
// Konfigurierbar via ONNX2TRT_DECODE_WORKERS
// Default: GOMAXPROCS
func DecodeWorkers() int {
	n := Uint("ONNX2TRT_DECODE_WORKERS", uint(runtime.GOMAXPROCS(0)))()
	return max(int(n), 1)
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
