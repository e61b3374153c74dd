// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint/Uint64: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
package envconfig

import (
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ONNX2TRT_DEBUG":          {"ONNX2TRT_DEBUG", LogLevel(), "Show additional debug information (e.g. ONNX2TRT_DEBUG=1)"},
		"ONNX2TRT_WORKSPACE":      {"ONNX2TRT_WORKSPACE", Workspace(), "Workspace memory pool limit in bytes (default 2 GiB)"},
		"ONNX2TRT_PROFILE_BATCH":  {"ONNX2TRT_PROFILE_BATCH", ProfileBatch(), "Min,opt,max batch of the dynamic shape profile (default \"1,8,16\")"},
		"ONNX2TRT_INPUT_NAME":     {"ONNX2TRT_INPUT_NAME", InputName(), "Override the input tensor used for the dynamic shape profile"},
		"ONNX2TRT_DECODE_WORKERS": {"ONNX2TRT_DECODE_WORKERS", DecodeWorkers(), "Parallel image decoders per calibration batch"},
		"ONNX2TRT_LETTERBOX":      {"ONNX2TRT_LETTERBOX", Letterbox(true), "Letterbox calibration images instead of stretching (default true)"},
		"CUDA_VISIBLE_DEVICES":    {"CUDA_VISIBLE_DEVICES", CudaVisibleDevices(), "Set which NVIDIA devices are visible"},
	}
}
