// build.go - Orchestrierung eines Engine-Builds gegen die Runtime
// Hauptfunktionen: Build
package builder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/mod/semver"
)

// MinRuntimeVersion ist die aelteste unterstuetzte TensorRT-Version
const MinRuntimeVersion = "v8.0.0"

// Build parst das Modell, konfiguriert den Builder nach cfg und gibt die
// serialisierte Engine zurueck. Build schreibt nichts auf die Platte und
// wiederholt nichts: jeder Fehler wird genau einmal zurueckgegeben.
func Build(rt Runtime, cfg BuildConfig, opts Options) (Engine, error) {
	plan, err := PlanBuild(cfg, opts)
	if err != nil {
		return nil, err
	}

	model, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, &IOError{Op: "read model", Path: cfg.ModelPath, Err: err}
	}

	checkRuntimeVersion(rt.Version())

	b, err := rt.NewBuilder(plan.Severity)
	if err != nil {
		return nil, newBuildFailure(cfg.ModelPath, plan.Precision, fmt.Errorf("create builder: %w", err))
	}
	defer b.Close()

	network, err := b.CreateNetwork(plan.NetworkFlags)
	if err != nil {
		return nil, newBuildFailure(cfg.ModelPath, plan.Precision, fmt.Errorf("create network: %w", err))
	}
	defer network.Close()

	if plan.NetworkFlags&NetworkExplicitPrecision != 0 {
		slog.Info("QAT enabled, skipping int8 calibration")
	}

	parser, err := b.CreateParser(network)
	if err != nil {
		return nil, newBuildFailure(cfg.ModelPath, plan.Precision, fmt.Errorf("create parser: %w", err))
	}
	defer parser.Close()

	slog.Debug("parsing onnx model", "model", cfg.ModelPath, "bytes", len(model))
	if !parser.Parse(model) {
		// neue Slice, die des Parsers gehoert der Runtime
		messages := append([]string(nil), parser.Errors()...)
		if len(messages) == 0 {
			messages = []string{"parser reported failure without diagnostics"}
		}
		return nil, &ParseError{Model: cfg.ModelPath, Messages: messages}
	}

	config, err := b.CreateConfig()
	if err != nil {
		return nil, newBuildFailure(cfg.ModelPath, plan.Precision, fmt.Errorf("create config: %w", err))
	}
	defer config.Close()

	config.SetMemoryPoolLimit(MemoryPoolWorkspace, plan.WorkspaceBytes)
	config.SetFlags(plan.BuilderFlags)

	if plan.Calibrate {
		if err := config.SetInt8Calibrator(opts.Calibrator); err != nil {
			return nil, newBuildFailure(cfg.ModelPath, plan.Precision, fmt.Errorf("attach calibrator: %w", err))
		}
		slog.Info("int8 calibration enabled", "algorithm", plan.Algorithm, "batch_size", opts.Calibrator.BatchSize(), "batches", cfg.Calib.NumBatches)
	}

	if plan.Profile != nil {
		if err := addProfile(b, config, plan.Profile); err != nil {
			return nil, newBuildFailure(cfg.ModelPath, plan.Precision, err)
		}
		if plan.Calibrate && int64(opts.Calibrator.BatchSize()) > plan.Profile.Range.Max[0] {
			slog.Warn("calibration batch size exceeds the max batch of the optimization profile",
				"batch_size", opts.Calibrator.BatchSize(), "profile_max", plan.Profile.Range.Max[0])
		}
	}

	for _, lp := range plan.LayerPrecisions {
		found, err := network.SetLayerPrecision(lp.Name, lp.DataType)
		if err != nil {
			return nil, newBuildFailure(cfg.ModelPath, plan.Precision, fmt.Errorf("set precision of layer %s: %w", lp.Name, err))
		}
		if !found {
			slog.Warn("layer not found, precision constraint ignored", "layer", lp.Name, "precision", lp.DataType)
		}
	}

	slog.Info("building an engine, this may take a while", "precision", plan.Precision, "flags", plan.BuilderFlags)
	if !cfg.Verbose {
		slog.Info(`use "--verbose" or "-v" to enable verbose logging`)
	}

	engine, err := b.BuildSerializedNetwork(network, config)
	if err != nil || len(engine) == 0 {
		return nil, newBuildFailure(cfg.ModelPath, plan.Precision, err)
	}

	return Engine(engine), nil
}

func addProfile(b Builder, config Config, p *Profile) error {
	profile, err := b.CreateOptimizationProfile()
	if err != nil {
		return fmt.Errorf("create optimization profile: %w", err)
	}

	if err := profile.SetShape(p.Input, p.Range); err != nil {
		return fmt.Errorf("set shape of %s: %w", p.Input, err)
	}

	if err := config.AddOptimizationProfile(profile); err != nil {
		return fmt.Errorf("add optimization profile: %w", err)
	}

	slog.Info("dynamic shape profile", "input", p.Input, "min", p.Range.Min, "opt", p.Range.Opt, "max", p.Range.Max)
	return nil
}

// checkRuntimeVersion warnt bei TensorRT aelter als 8, bricht aber nicht ab
func checkRuntimeVersion(version string) {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}

	switch {
	case !semver.IsValid(v):
		slog.Warn("unrecognized TensorRT version", "version", version)
	case semver.Compare(v, MinRuntimeVersion) < 0:
		slog.Warn("TensorRT version should be >= 8, the build will likely fail", "version", version)
	default:
		slog.Debug("TensorRT runtime", "version", version)
	}
}
