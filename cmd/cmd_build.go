// cmd_build.go - Build-Command: Flags, Modell-Inspektion, Kalibrierung, Engine schreiben
// Hauptfunktionen: BuildHandler, addBuildFlags, buildConfigFromFlags, buildOptions, writeEngine
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/trtforge/onnx2trt/builder"
	"github.com/trtforge/onnx2trt/calib"
	"github.com/trtforge/onnx2trt/envconfig"
	"github.com/trtforge/onnx2trt/logutil"
	"github.com/trtforge/onnx2trt/onnx"
	"github.com/trtforge/onnx2trt/vision"
)

// Defaults der Kalibrier-Flags
const (
	defaultImageSize   = 640
	defaultBatchSize   = 128
	defaultNumBatches  = 6
	defaultCalibImgDir = "./datasets/coco/images/train2017"
	defaultCalibCache  = "./calibration.cache"
)

func addBuildFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("model", "m", "", "ONNX model path (required)")
	f.StringP("dtype", "d", "", "Engine data type: int8, fp16 or fp32 (required)")
	f.BoolP("verbose", "v", false, "Enable verbose TensorRT and debug logging")
	f.Bool("dynamic-shape", false, "Add a dynamic batch optimization profile")
	f.Bool("qat", false, "The model is quantization-aware trained (int8 without calibration)")
	f.Int("img-size", defaultImageSize, "Input image size")
	f.Int("batch-size", defaultBatchSize, "Calibration batch size")
	f.Int("num-calib-batch", defaultNumBatches, "Number of calibration batches")
	f.String("calib-img-dir", defaultCalibImgDir, "Directory with calibration images")
	f.String("calib-cache", defaultCalibCache, "Calibration cache file, reused when present")
	f.String("calib-method", builder.DefaultCalibrationMethod, "Calibration method: minmax, entropy, entropy2 or legacy")
	f.StringP("output", "o", "", "Engine output path (default derived from the model path)")
	f.StringSlice("fp32-layers", nil, "Layer names forced to fp32")
	f.StringSlice("fp16-layers", nil, "Layer names forced to fp16")
}

// buildConfigFromFlags liest die Flags in eine BuildConfig
func buildConfigFromFlags(flags *pflag.FlagSet) (builder.BuildConfig, error) {
	var cfg builder.BuildConfig
	var err error

	if cfg.ModelPath, err = flags.GetString("model"); err != nil {
		return cfg, err
	}
	if cfg.ModelPath == "" {
		return cfg, &builder.ConfigError{Field: "model", Reason: `required flag "--model" not set`}
	}

	dtype, err := flags.GetString("dtype")
	if err != nil {
		return cfg, err
	}
	if cfg.Precision, err = builder.ParsePrecision(dtype); err != nil {
		return cfg, err
	}

	for name, dst := range map[string]*bool{
		"verbose":       &cfg.Verbose,
		"dynamic-shape": &cfg.DynamicShape,
		"qat":           &cfg.QAT,
	} {
		if *dst, err = flags.GetBool(name); err != nil {
			return cfg, err
		}
	}

	for name, dst := range map[string]*int{
		"img-size":        &cfg.Calib.ImageSize,
		"batch-size":      &cfg.Calib.BatchSize,
		"num-calib-batch": &cfg.Calib.NumBatches,
	} {
		if *dst, err = flags.GetInt(name); err != nil {
			return cfg, err
		}
	}

	for name, dst := range map[string]*string{
		"calib-img-dir": &cfg.Calib.ImageDir,
		"calib-cache":   &cfg.Calib.CachePath,
		"calib-method":  &cfg.Calib.Method,
		"output":        &cfg.Output,
	} {
		if *dst, err = flags.GetString(name); err != nil {
			return cfg, err
		}
	}

	// Dateiname und Parser sehen dieselbe Schreibweise
	cfg.Calib.Method = strings.ToLower(cfg.Calib.Method)

	// GetStringSlice gibt eine neue Slice pro Aufruf zurueck
	if cfg.FP32Layers, err = flags.GetStringSlice("fp32-layers"); err != nil {
		return cfg, err
	}
	if cfg.FP16Layers, err = flags.GetStringSlice("fp16-layers"); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// BuildHandler - Baut die Engine und schreibt sie neben das Modell
func BuildHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfigFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	level := envconfig.LogLevel()
	if cfg.Verbose {
		level = min(level, slog.LevelDebug)
	}
	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), level))

	model, err := onnx.InspectFile(cfg.ModelPath)
	if err != nil {
		// der TensorRT-Parser entscheidet, hier nur warnen
		slog.Warn("could not inspect onnx model", "model", cfg.ModelPath, "error", err)
	}

	opts, inputType := buildOptions(cfg, model)

	if cfg.Calibrate() {
		// der Loader erzeugt immer RGB-Batches
		if opts.Channels != 0 && opts.Channels != vision.Channels {
			return &builder.ConfigError{
				Field:  "input channels",
				Reason: fmt.Sprintf("calibration supports %d-channel inputs, model input %q has %d", vision.Channels, opts.InputName, opts.Channels),
			}
		}
		cal, err := calib.NewFromConfig(cfg.Calib, inputType, envconfig.DecodeWorkers(), envconfig.Letterbox(true))
		if err != nil {
			return err
		}
		opts.Calibrator = cal
	}

	plan, err := builder.PlanBuild(cfg, opts)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSummary(out, cfg, plan, model)

	engine, err := builder.Build(rt, cfg, opts)
	if err != nil {
		if cfg.Verbose {
			slog.Debug("build failed", "detail", fmt.Sprintf("%+v", err))
		}
		return err
	}

	path := cfg.EnginePath()
	if err := writeEngine(path, engine); err != nil {
		return err
	}

	fmt.Fprintf(out, "Serialized the TensorRT engine to file: %s\n", path)
	return nil
}

// buildOptions leitet Input-Name, Kanalzahl und Input-Datentyp aus dem Modell ab
func buildOptions(cfg builder.BuildConfig, model *onnx.Model) (builder.Options, builder.DataType) {
	opts := builder.Options{
		InputName:      builder.DefaultInputName,
		ProfileBatch:   envconfig.ProfileBatch(),
		WorkspaceBytes: envconfig.Workspace(),
	}
	inputType := builder.DataFloat

	if model != nil {
		if in, ok := model.PrimaryInput(); ok {
			opts.InputName = in.Name
			if len(in.Dims) == 4 && in.Dims[1].Known() {
				opts.Channels = in.Dims[1].Value
			}

			switch in.ElemType {
			case onnx.ElemFloat16:
				inputType = builder.DataHalf
			case onnx.ElemBFloat16:
				inputType = builder.DataBFloat16
			}

			slog.Debug("model input", "name", in.Name, "type", in.ElemType, "shape", in.ShapeString())
		}

		switch quantized := model.IsQuantized(); {
		case cfg.QAT && !quantized:
			slog.Warn("--qat is set but the graph has no QuantizeLinear/DequantizeLinear nodes")
		case !cfg.QAT && quantized && cfg.Precision == builder.PrecisionINT8:
			slog.Warn("the graph contains QuantizeLinear/DequantizeLinear nodes, consider --qat")
		}
	}

	if name := envconfig.InputName(); name != "" {
		opts.InputName = name
	}

	return opts, inputType
}

// writeEngine schreibt die Engine unveraendert ueber eine temporaere Datei
func writeEngine(path string, engine builder.Engine) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return &builder.IOError{Op: "write engine", Path: path, Err: err}
	}
	defer os.Remove(f.Name())

	_, err = f.Write(engine)
	if err == nil {
		err = f.Chmod(0o644)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		return &builder.IOError{Op: "write engine", Path: path, Err: err}
	}

	return nil
}

// ErrorMessage formatiert einen Fehler als "<Art>: <Meldung>" fuer stderr.
// Parser-Meldungen stehen jeweils auf einer eigenen Zeile.
func ErrorMessage(err error) string {
	var perr *builder.ParseError
	if errors.As(err, &perr) {
		msg := fmt.Sprintf("%s: ONNX parse failed for %s (%d errors)", builder.Kind(err), perr.Model, len(perr.Messages))
		for _, m := range perr.Messages {
			msg += "\n  " + m
		}
		return msg
	}

	return builder.Kind(err) + ": " + err.Error()
}
