// config_features.go - Feature-Flags und GPU-Konfiguration
//
// Dieses Modul enthaelt:
// - Feature-Flags fuer die Kalibrierung
// - GPU-bezogene Environment-Variablen
package envconfig

// =============================================================================
// Feature-Flags
// =============================================================================

var (
	// Letterbox skaliert Kalibrierbilder mit erhaltenem Seitenverhaeltnis und
	// grauem Rand. Bei false wird direkt auf das Quadrat gestreckt.
	Letterbox = BoolWithDefault("ONNX2TRT_LETTERBOX")
)

// =============================================================================
// GPU-Sichtbarkeits-Variablen
// =============================================================================

var (
	// CudaVisibleDevices steuert sichtbare NVIDIA-Geraete
	CudaVisibleDevices = String("CUDA_VISIBLE_DEVICES")
)
