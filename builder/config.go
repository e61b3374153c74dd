// config.go - BuildConfig und Ableitung des Engine-Dateinamens
// Hauptfunktionen: ParsePrecision, ParseCalibrationMethod, BuildConfig.Validate, BuildConfig.EnginePath
package builder

import (
	"fmt"
	"strings"
)

// Precision ist die Zielgenauigkeit der Engine
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
	PrecisionINT8 Precision = "int8"
)

// ParsePrecision akzeptiert genau int8, fp16 und fp32
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(s); p {
	case PrecisionFP32, PrecisionFP16, PrecisionINT8:
		return p, nil
	default:
		return "", &ConfigError{Field: "dtype", Value: s, Reason: "unsupported data type, must be one of int8, fp16, fp32"}
	}
}

// CalibrationAlgorithm waehlt die Kalibrier-Variante der Runtime
type CalibrationAlgorithm int

const (
	CalibrationMinMax CalibrationAlgorithm = iota
	CalibrationEntropy
	CalibrationEntropy2
	CalibrationLegacy
)

// DefaultCalibrationMethod ist der Default von --calib-method
const DefaultCalibrationMethod = "minmax"

var calibrationMethods = map[string]CalibrationAlgorithm{
	"minmax":   CalibrationMinMax,
	"entropy":  CalibrationEntropy,
	"entropy2": CalibrationEntropy2,
	"legacy":   CalibrationLegacy,
}

// ParseCalibrationMethod bildet --calib-method auf einen Algorithmus ab.
// Ein leerer Wert bedeutet minmax.
func ParseCalibrationMethod(s string) (CalibrationAlgorithm, error) {
	if s == "" {
		s = DefaultCalibrationMethod
	}
	if a, ok := calibrationMethods[strings.ToLower(s)]; ok {
		return a, nil
	}
	return 0, &ConfigError{Field: "calib-method", Value: s, Reason: "must be one of minmax, entropy, entropy2, legacy"}
}

func (a CalibrationAlgorithm) String() string {
	for name, v := range calibrationMethods {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("calibration(%d)", int(a))
}

// CalibParams sind die Kalibrier-Parameter, nur fuer int8 ohne QAT relevant
type CalibParams struct {
	BatchSize  int
	NumBatches int
	ImageDir   string
	ImageSize  int
	CachePath  string
	Method     string
}

// BuildConfig bestimmt einen Build vollstaendig. Sie wird einmal aus den
// CLI-Argumenten erzeugt und danach nicht mehr veraendert.
type BuildConfig struct {
	ModelPath    string
	Precision    Precision
	Verbose      bool
	DynamicShape bool
	QAT          bool
	Calib        CalibParams

	// Schichten, die in fp32 bzw. fp16 gerechnet werden muessen
	FP32Layers []string
	FP16Layers []string

	// Output ueberschreibt den abgeleiteten Engine-Pfad
	Output string
}

// Calibrate meldet ob der Build einen Calibrator braucht
func (c BuildConfig) Calibrate() bool {
	return c.Precision == PrecisionINT8 && !c.QAT
}

// Validate prueft die Konfiguration ohne Dateizugriff
func (c BuildConfig) Validate() error {
	if _, err := ParsePrecision(string(c.Precision)); err != nil {
		return err
	}

	if c.ModelPath == "" {
		return &ConfigError{Field: "model", Reason: "path is required"}
	}

	if c.DynamicShape && c.Calib.ImageSize <= 0 {
		return &ConfigError{Field: "img-size", Value: fmt.Sprint(c.Calib.ImageSize), Reason: "must be positive"}
	}

	if c.Calibrate() {
		switch {
		case c.Calib.BatchSize <= 0:
			return &ConfigError{Field: "batch-size", Value: fmt.Sprint(c.Calib.BatchSize), Reason: "must be positive"}
		case c.Calib.NumBatches <= 0:
			return &ConfigError{Field: "num-calib-batch", Value: fmt.Sprint(c.Calib.NumBatches), Reason: "must be positive"}
		case c.Calib.ImageSize <= 0:
			return &ConfigError{Field: "img-size", Value: fmt.Sprint(c.Calib.ImageSize), Reason: "must be positive"}
		case c.Calib.ImageDir == "":
			return &ConfigError{Field: "calib-img-dir", Reason: "required for int8 calibration"}
		}

		if _, err := ParseCalibrationMethod(c.Calib.Method); err != nil {
			return err
		}
	}

	fp16 := make(map[string]struct{}, len(c.FP16Layers))
	for _, name := range c.FP16Layers {
		fp16[name] = struct{}{}
	}
	for _, name := range c.FP32Layers {
		if _, ok := fp16[name]; ok {
			return &ConfigError{Field: "layer precision", Value: name, Reason: "listed as both fp32 and fp16"}
		}
	}

	return nil
}

// EnginePath leitet den Ausgabepfad ab: die Endung .onnx wird ersetzt,
// kalibrierte int8-Engines tragen Batch-Groesse, Batch-Anzahl und Methode im Namen.
func (c BuildConfig) EnginePath() string {
	if c.Output != "" {
		return c.Output
	}

	base := strings.TrimSuffix(c.ModelPath, ".onnx")
	if c.Calibrate() {
		method := strings.ToLower(c.Calib.Method)
		if method == "" {
			method = DefaultCalibrationMethod
		}
		return fmt.Sprintf("%s-int8-%d-%d-%s.engine", base, c.Calib.BatchSize, c.Calib.NumBatches, method)
	}
	return base + ".engine"
}
