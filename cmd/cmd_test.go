package cmd

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trtforge/onnx2trt/builder"
	"github.com/trtforge/onnx2trt/builder/buildertest"
	"github.com/trtforge/onnx2trt/onnx/onnxtest"
)

// useRuntime ersetzt die TensorRT-Runtime fuer die Dauer des Tests
func useRuntime(t *testing.T, rt builder.Runtime) {
	t.Helper()
	old := newRuntime
	newRuntime = func() (builder.Runtime, error) { return rt, nil }
	t.Cleanup(func() { newRuntime = old })
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	c := NewCLI()
	c.SetArgs(args)
	c.SetOut(&stdout)
	c.SetErr(&stderr)
	err := c.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func writeModel(t *testing.T, m onnxtest.Model) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yolov8n.onnx")
	require.NoError(t, os.WriteFile(path, m.Bytes(), 0o644))
	return path
}

func writeImages(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := range n {
		img := image.NewRGBA(image.Rect(0, 0, 10, 6))
		for p := range len(img.Pix) / 4 {
			img.Pix[p*4] = uint8(i * 30)
			img.Pix[p*4+3] = 255
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%03d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return dir
}

func TestBuildFP16(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())

	stdout, _, err := run(t, "-m", model, "-d", "fp16")
	require.NoError(t, err)

	enginePath := strings.TrimSuffix(model, ".onnx") + ".engine"
	require.Contains(t, stdout, "Serialized the TensorRT engine to file: "+enginePath+"\n")
	require.Contains(t, stdout, "FP16")

	data, err := os.ReadFile(enginePath)
	require.NoError(t, err)
	require.Equal(t, []byte("fake-engine"), data)

	require.Equal(t, builder.BuilderFP16, rt.BuilderFlags)
	require.Empty(t, rt.Profiles)
	require.Equal(t, builder.SeverityWarning, rt.Severity)
}

func TestBuildEngineWrittenVerbatim(t *testing.T) {
	rt := buildertest.NewRuntime()
	rt.Engine = []byte{0x00, 0xff, '\n', 0x00, 'p', 't', 'r', 't'}
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())
	out := filepath.Join(t.TempDir(), "custom.plan")

	_, _, err := run(t, "-m", model, "-d", "fp32", "-o", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, rt.Engine, data)

	_, err = os.Stat(strings.TrimSuffix(model, ".onnx") + ".engine")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildInvalidFlags(t *testing.T) {
	model := writeModel(t, onnxtest.YOLO())

	cases := map[string][]string{
		"unknown dtype":  {"-m", model, "-d", "fp64"},
		"missing dtype":  {"-m", model},
		"missing model":  {"-d", "fp16"},
		"unknown method": {"-m", model, "-d", "int8", "--calib-method", "percentile"},
		"zero batches":   {"-m", model, "-d", "int8", "--num-calib-batch", "0"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			rt := buildertest.NewRuntime()
			useRuntime(t, rt)

			_, _, err := run(t, args...)

			var cerr *builder.ConfigError
			require.ErrorAs(t, err, &cerr)
			require.True(t, strings.HasPrefix(ErrorMessage(err), "ConfigError: "))
			require.Empty(t, rt.Calls)
		})
	}
}

func TestBuildInt8Calibrated(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())
	images := writeImages(t, 5)
	cache := filepath.Join(t.TempDir(), "calibration.cache")

	stdout, _, err := run(t, "-m", model, "-d", "int8",
		"--batch-size", "2", "--num-calib-batch", "2", "--img-size", "16",
		"--calib-img-dir", images, "--calib-cache", cache, "--calib-method", "entropy2")
	require.NoError(t, err)

	enginePath := strings.TrimSuffix(model, ".onnx") + "-int8-2-2-entropy2.engine"
	require.Contains(t, stdout, enginePath)
	require.FileExists(t, enginePath)

	require.Len(t, rt.Pulled, 2)
	require.Equal(t, []string{filepath.Join(images, "000.png"), filepath.Join(images, "001.png")}, rt.Pulled[0].Files)
	require.Equal(t, []string{filepath.Join(images, "002.png"), filepath.Join(images, "003.png")}, rt.Pulled[1].Files)
	require.Equal(t, builder.Dims{2, 3, 16, 16}, rt.Pulled[0].Shape)
	require.Equal(t, builder.CalibrationEntropy2, rt.Calibrator.Algorithm())

	data, err := os.ReadFile(cache)
	require.NoError(t, err)
	require.Equal(t, buildertest.CacheBytes, data)
}

func TestBuildCalibMethodCaseInsensitive(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())

	stdout, _, err := run(t, "-m", model, "-d", "int8",
		"--batch-size", "2", "--num-calib-batch", "2", "--img-size", "16",
		"--calib-img-dir", writeImages(t, 4), "--calib-cache", filepath.Join(t.TempDir(), "c.cache"), "--calib-method", "MinMax")
	require.NoError(t, err)

	enginePath := strings.TrimSuffix(model, ".onnx") + "-int8-2-2-minmax.engine"
	require.Contains(t, stdout, "Serialized the TensorRT engine to file: "+enginePath+"\n")
	require.FileExists(t, enginePath)
	require.Equal(t, builder.CalibrationMinMax, rt.Calibrator.Algorithm())
}

func TestBuildInt8RejectsNonRGBInput(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)
	m := onnxtest.YOLO()
	m.Inputs = []onnxtest.Value{{Name: "images", Elem: 1, Dims: []any{int64(1), int64(1), int64(640), int64(640)}}}
	model := writeModel(t, m)

	_, _, err := run(t, "-m", model, "-d", "int8", "--batch-size", "2", "--num-calib-batch", "1", "--calib-img-dir", writeImages(t, 2))

	var cerr *builder.ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "input channels", cerr.Field)
	require.Empty(t, rt.Calls)

	// fp16 braucht keine Kalibrierung, 1 Kanal ist erlaubt
	_, _, err = run(t, "-m", model, "-d", "fp16")
	require.NoError(t, err)
}

func TestEngineFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Unix-Dateirechte")
	}
	path := filepath.Join(t.TempDir(), "model.engine")
	require.NoError(t, writeEngine(path, []byte("x")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestBuildInt8TooFewImages(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())

	_, _, err := run(t, "-m", model, "-d", "int8", "--batch-size", "4", "--num-calib-batch", "2", "--calib-img-dir", writeImages(t, 3))

	var cerr *builder.ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Empty(t, rt.Calls)
}

func TestBuildInt8QAT(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)
	m := onnxtest.YOLO()
	m.Ops = append(m.Ops, "QuantizeLinear", "DequantizeLinear")
	model := writeModel(t, m)

	// das Default-Bildverzeichnis existiert nicht und wird nicht gebraucht
	stdout, stderr, err := run(t, "-m", model, "-d", "int8", "--qat")
	require.NoError(t, err)

	require.Contains(t, stdout, strings.TrimSuffix(model, ".onnx")+".engine")
	require.Empty(t, rt.Pulled)
	require.False(t, rt.Called("SetInt8Calibrator"))
	require.Equal(t, builder.NetworkExplicitBatch|builder.NetworkExplicitPrecision, rt.NetworkFlags)
	require.NotContains(t, stderr, "consider --qat")
}

func TestBuildQATWithoutQDQWarns(t *testing.T) {
	useRuntime(t, buildertest.NewRuntime())
	model := writeModel(t, onnxtest.YOLO())

	_, stderr, err := run(t, "-m", model, "-d", "int8", "--qat")
	require.NoError(t, err)
	require.Contains(t, stderr, "--qat is set but the graph has no QuantizeLinear/DequantizeLinear nodes")
}

func TestBuildParseError(t *testing.T) {
	rt := buildertest.NewRuntime()
	rt.ParseErrors = []string{"first problem", "second problem", "third problem"}
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())

	_, _, err := run(t, "-m", model, "-d", "fp32")

	var perr *builder.ParseError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Messages, 3)

	msg := ErrorMessage(err)
	require.True(t, strings.HasPrefix(msg, "ParseError: "))
	require.Len(t, strings.Split(msg, "\n"), 4)
	require.Contains(t, msg, "\n  third problem")

	require.False(t, rt.Called("BuildSerializedNetwork"))
	require.NoFileExists(t, strings.TrimSuffix(model, ".onnx")+".engine")
}

func TestBuildFailureVerbose(t *testing.T) {
	rt := buildertest.NewRuntime()
	rt.Engine = nil
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())

	_, stderr, err := run(t, "-m", model, "-d", "fp16", "-v")

	var berr *builder.BuildFailure
	require.ErrorAs(t, err, &berr)
	require.True(t, strings.HasPrefix(ErrorMessage(err), "BuildFailure: "))
	require.Contains(t, stderr, "build failed")
	require.Equal(t, builder.SeverityVerbose, rt.Severity)
	require.NoFileExists(t, strings.TrimSuffix(model, ".onnx")+".engine")
}

func TestBuildDynamicShapeUsesModelInput(t *testing.T) {
	m := onnxtest.YOLO()
	m.Inputs = []onnxtest.Value{{Name: "input0", Elem: 1, Dims: []any{"batch", int64(3), int64(640), int64(640)}}}

	t.Run("from model", func(t *testing.T) {
		rt := buildertest.NewRuntime()
		useRuntime(t, rt)

		_, _, err := run(t, "-m", writeModel(t, m), "-d", "fp16", "--dynamic-shape", "--img-size", "320")
		require.NoError(t, err)

		require.Equal(t, builder.ShapeRange{
			Min: builder.Dims{1, 3, 320, 320},
			Opt: builder.Dims{8, 3, 320, 320},
			Max: builder.Dims{16, 3, 320, 320},
		}, rt.Profiles["input0"])
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ONNX2TRT_INPUT_NAME", "data")
		t.Setenv("ONNX2TRT_PROFILE_BATCH", "2,4,32")
		rt := buildertest.NewRuntime()
		useRuntime(t, rt)

		_, _, err := run(t, "-m", writeModel(t, m), "-d", "fp16", "--dynamic-shape")
		require.NoError(t, err)

		require.Equal(t, builder.Dims{2, 3, 640, 640}, rt.Profiles["data"].Min)
		require.Equal(t, builder.Dims{32, 3, 640, 640}, rt.Profiles["data"].Max)
	})
}

func TestBuildUnreadableModel(t *testing.T) {
	rt := buildertest.NewRuntime()
	useRuntime(t, rt)

	_, _, err := run(t, "-m", filepath.Join(t.TempDir(), "missing.onnx"), "-d", "fp16")

	var ioErr *builder.IOError
	require.ErrorAs(t, err, &ioErr)
	require.True(t, strings.HasPrefix(ErrorMessage(err), "IOError: "))
}

func TestBuildLayerPrecisions(t *testing.T) {
	rt := buildertest.NewRuntime()
	rt.Layers = []string{"/model.22/dfl/conv/Conv"}
	useRuntime(t, rt)
	model := writeModel(t, onnxtest.YOLO())

	_, _, err := run(t, "-m", model, "-d", "fp16", "--fp32-layers", "/model.22/dfl/conv/Conv,/missing")
	require.NoError(t, err)

	require.Equal(t, map[string]builder.DataType{"/model.22/dfl/conv/Conv": builder.DataFloat}, rt.LayerPrecisions)
	require.True(t, rt.BuilderFlags.Has(builder.BuilderObeyPrecisionConstraints))
}

func TestVersion(t *testing.T) {
	useRuntime(t, buildertest.NewRuntime())

	stdout, _, err := run(t, "--version")
	require.NoError(t, err)
	require.Contains(t, stdout, "onnx2trt version is ")
	require.Contains(t, stdout, "TensorRT version is 8.6.1")
}
