// plan.go - Deterministische Ableitung der Builder-Einstellungen
// Hauptfunktionen: PlanBuild, Options
package builder

import (
	"cmp"
	"fmt"
	"slices"
)

// DefaultInputName ist der Input-Tensor der YOLO-Exporte
const DefaultInputName = "images"

// DefaultWorkspace ist das Limit des Workspace-Pools (2 GiB)
const DefaultWorkspace uint64 = 2 << 30

// DefaultProfileBatch sind min/opt/max Batch-Groessen bei --dynamic-shape
var DefaultProfileBatch = [3]int64{1, 8, 16}

// Options ergaenzt die BuildConfig um Werte, die nicht aus der CLI kommen
type Options struct {
	// Calibrator wird bei int8 ohne QAT an die Konfiguration gehaengt
	Calibrator Calibrator

	// InputName ist der Input fuer das Optimierungsprofil (Default "images")
	InputName string

	// Channels ist die Kanalzahl des Inputs (Default 3)
	Channels int64

	// ProfileBatch sind min/opt/max Batch-Groessen (Default 1, 8, 16)
	ProfileBatch [3]int64

	// WorkspaceBytes ist das Limit des Workspace-Pools (Default 2 GiB)
	WorkspaceBytes uint64
}

// Profile ist ein Optimierungsprofil fuer einen Input
type Profile struct {
	Input string
	Range ShapeRange
}

// LayerPrecision erzwingt den Datentyp einer benannten Schicht
type LayerPrecision struct {
	Name     string
	DataType DataType
}

// Plan sind alle aus der Konfiguration abgeleiteten Einstellungen eines Builds
type Plan struct {
	Precision       Precision
	Severity        Severity
	NetworkFlags    NetworkFlag
	BuilderFlags    BuilderFlag
	Calibrate       bool
	Algorithm       CalibrationAlgorithm
	Profile         *Profile
	WorkspaceBytes  uint64
	LayerPrecisions []LayerPrecision
}

// PlanBuild validiert cfg und leitet daraus den Plan ab. Gleiche Eingaben
// ergeben immer denselben Plan.
func PlanBuild(cfg BuildConfig, opts Options) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}

	p := Plan{
		Precision:      cfg.Precision,
		Severity:       SeverityWarning,
		NetworkFlags:   NetworkExplicitBatch,
		WorkspaceBytes: cmp.Or(opts.WorkspaceBytes, DefaultWorkspace),
	}

	if cfg.Verbose {
		p.Severity = SeverityVerbose
	}

	switch cfg.Precision {
	case PrecisionFP16:
		p.BuilderFlags |= BuilderFP16
	case PrecisionINT8:
		// fp16 als Ausweichgenauigkeit fuer Schichten ohne int8-Kernel
		p.BuilderFlags |= BuilderINT8 | BuilderFP16

		if cfg.QAT {
			p.NetworkFlags |= NetworkExplicitPrecision
		} else {
			if opts.Calibrator == nil {
				return Plan{}, &ConfigError{Field: "calibrator", Reason: "int8 calibration requires a calibration data supplier"}
			}
			algo, err := ParseCalibrationMethod(cfg.Calib.Method)
			if err != nil {
				return Plan{}, err
			}
			p.Calibrate = true
			p.Algorithm = algo
		}
	}

	if cfg.DynamicShape {
		batch := opts.ProfileBatch
		if batch == ([3]int64{}) {
			batch = DefaultProfileBatch
		}
		if batch[0] <= 0 || batch[0] > batch[1] || batch[1] > batch[2] {
			return Plan{}, &ConfigError{Field: "profile batch", Value: fmt.Sprint(batch), Reason: "must satisfy 0 < min <= opt <= max"}
		}

		channels := cmp.Or(opts.Channels, 3)
		size := int64(cfg.Calib.ImageSize)
		p.Profile = &Profile{
			Input: cmp.Or(opts.InputName, DefaultInputName),
			Range: ShapeRange{
				Min: Dims{batch[0], channels, size, size},
				Opt: Dims{batch[1], channels, size, size},
				Max: Dims{batch[2], channels, size, size},
			},
		}
	}

	// neue Slices pro Plan, die Listen der Konfiguration werden nie geteilt
	layers := make([]LayerPrecision, 0, len(cfg.FP32Layers)+len(cfg.FP16Layers))
	for _, name := range cfg.FP32Layers {
		layers = append(layers, LayerPrecision{Name: name, DataType: DataFloat})
	}
	for _, name := range cfg.FP16Layers {
		layers = append(layers, LayerPrecision{Name: name, DataType: DataHalf})
	}
	if len(layers) > 0 {
		p.LayerPrecisions = slices.Clip(layers)
		p.BuilderFlags |= BuilderObeyPrecisionConstraints
		if slices.ContainsFunc(layers, func(l LayerPrecision) bool { return l.DataType == DataHalf }) {
			p.BuilderFlags |= BuilderFP16
		}
	}

	return p, nil
}
