// Package buildertest stellt eine speicherinterne Runtime fuer Tests bereit.
//
// Die Fake-Runtime zeichnet alle Aufrufe auf und spielt die Kalibrierung so
// nach wie TensorRT: ist ein Calibrator gesetzt und liefert ReadCache nichts,
// wird NextBatch bis io.EOF aufgerufen und danach WriteCache.
package buildertest

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/trtforge/onnx2trt/builder"
)

// CacheBytes schreibt die Fake-Runtime nach einer vollstaendigen Kalibrierung
var CacheBytes = []byte("fake-calibration-cache")

// PulledBatch ist eine Kopie eines vom Calibrator gelieferten Batches
type PulledBatch struct {
	Index int
	Shape builder.Dims
	Bytes int
	Files []string
}

// Runtime implementiert builder.Runtime
type Runtime struct {
	VersionString string

	// ParseErrors != nil laesst Parse fehlschlagen
	ParseErrors []string
	ParseFails  bool

	// Engine wird von BuildSerializedNetwork zurueckgegeben
	Engine   []byte
	BuildErr error

	NewBuilderErr error

	// Layers sind die Schichtnamen, die SetLayerPrecision kennt
	Layers []string

	// Aufzeichnung
	Calls           []string
	Severity        builder.Severity
	NetworkFlags    builder.NetworkFlag
	BuilderFlags    builder.BuilderFlag
	Workspace       uint64
	Calibrator      builder.Calibrator
	Profiles        map[string]builder.ShapeRange
	LayerPrecisions map[string]builder.DataType
	Parsed          []byte
	Pulled          []PulledBatch
	CacheRead       []byte
	CacheWritten    []byte
	Closed          []string
}

// NewRuntime gibt eine Runtime zurueck, die erfolgreich "fake-engine" baut
func NewRuntime() *Runtime {
	return &Runtime{
		VersionString:   "8.6.1",
		Engine:          []byte("fake-engine"),
		Profiles:        make(map[string]builder.ShapeRange),
		LayerPrecisions: make(map[string]builder.DataType),
	}
}

// Called meldet ob die Methode aufgerufen wurde
func (r *Runtime) Called(name string) bool {
	return slices.Contains(r.Calls, name)
}

func (r *Runtime) record(name string) {
	r.Calls = append(r.Calls, name)
}

func (r *Runtime) Version() string {
	r.record("Version")
	return r.VersionString
}

func (r *Runtime) NewBuilder(severity builder.Severity) (builder.Builder, error) {
	r.record("NewBuilder")
	if r.NewBuilderErr != nil {
		return nil, r.NewBuilderErr
	}
	r.Severity = severity
	return &fakeBuilder{r: r}, nil
}

type fakeBuilder struct {
	r *Runtime
}

func (b *fakeBuilder) CreateNetwork(flags builder.NetworkFlag) (builder.Network, error) {
	b.r.record("CreateNetwork")
	b.r.NetworkFlags = flags
	return &fakeNetwork{r: b.r}, nil
}

func (b *fakeBuilder) CreateParser(network builder.Network) (builder.Parser, error) {
	b.r.record("CreateParser")
	if _, ok := network.(*fakeNetwork); !ok {
		return nil, errors.New("buildertest: foreign network")
	}
	return &fakeParser{r: b.r}, nil
}

func (b *fakeBuilder) CreateConfig() (builder.Config, error) {
	b.r.record("CreateConfig")
	return &fakeConfig{r: b.r}, nil
}

func (b *fakeBuilder) CreateOptimizationProfile() (builder.OptimizationProfile, error) {
	b.r.record("CreateOptimizationProfile")
	return &fakeProfile{shapes: make(map[string]builder.ShapeRange)}, nil
}

func (b *fakeBuilder) BuildSerializedNetwork(network builder.Network, config builder.Config) ([]byte, error) {
	b.r.record("BuildSerializedNetwork")

	if c := b.r.Calibrator; c != nil {
		if err := b.r.calibrate(c); err != nil {
			return nil, err
		}
	}

	if b.r.BuildErr != nil {
		return nil, b.r.BuildErr
	}
	return slices.Clone(b.r.Engine), nil
}

func (b *fakeBuilder) Close() error {
	b.r.Closed = append(b.r.Closed, "builder")
	return nil
}

func (r *Runtime) calibrate(c builder.Calibrator) error {
	cache, err := c.ReadCache()
	if err != nil {
		return fmt.Errorf("read calibration cache: %w", err)
	}
	if cache != nil {
		r.CacheRead = cache
		return nil
	}

	for {
		batch, err := c.NextBatch()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if len(batch.Data) != c.BatchBytes() {
			return fmt.Errorf("buildertest: batch %d has %d bytes, calibrator announced %d", batch.Index, len(batch.Data), c.BatchBytes())
		}
		r.Pulled = append(r.Pulled, PulledBatch{
			Index: batch.Index,
			Shape: slices.Clone(batch.Shape),
			Bytes: len(batch.Data),
			Files: slices.Clone(batch.Files),
		})
	}

	r.CacheWritten = slices.Clone(CacheBytes)
	return c.WriteCache(CacheBytes)
}

type fakeNetwork struct {
	r *Runtime
}

func (n *fakeNetwork) SetLayerPrecision(name string, dt builder.DataType) (bool, error) {
	n.r.record("SetLayerPrecision")
	if !slices.Contains(n.r.Layers, name) {
		return false, nil
	}
	n.r.LayerPrecisions[name] = dt
	return true, nil
}

func (n *fakeNetwork) Close() error {
	n.r.Closed = append(n.r.Closed, "network")
	return nil
}

type fakeParser struct {
	r *Runtime
}

func (p *fakeParser) Parse(model []byte) bool {
	p.r.record("Parse")
	p.r.Parsed = slices.Clone(model)
	return p.r.ParseErrors == nil && !p.r.ParseFails
}

func (p *fakeParser) Errors() []string {
	return p.r.ParseErrors
}

func (p *fakeParser) Close() error {
	p.r.Closed = append(p.r.Closed, "parser")
	return nil
}

type fakeConfig struct {
	r *Runtime
}

func (c *fakeConfig) SetMemoryPoolLimit(pool builder.MemoryPool, bytes uint64) {
	if pool == builder.MemoryPoolWorkspace {
		c.r.Workspace = bytes
	}
}

func (c *fakeConfig) SetFlags(flags builder.BuilderFlag) {
	c.r.BuilderFlags = flags
}

func (c *fakeConfig) SetInt8Calibrator(cal builder.Calibrator) error {
	c.r.record("SetInt8Calibrator")
	c.r.Calibrator = cal
	return nil
}

func (c *fakeConfig) AddOptimizationProfile(p builder.OptimizationProfile) error {
	c.r.record("AddOptimizationProfile")
	fp, ok := p.(*fakeProfile)
	if !ok {
		return errors.New("buildertest: foreign profile")
	}
	for k, v := range fp.shapes {
		c.r.Profiles[k] = v
	}
	return nil
}

func (c *fakeConfig) Close() error {
	c.r.Closed = append(c.r.Closed, "config")
	return nil
}

type fakeProfile struct {
	shapes map[string]builder.ShapeRange
}

func (p *fakeProfile) SetShape(input string, r builder.ShapeRange) error {
	if len(r.Min) != len(r.Opt) || len(r.Opt) != len(r.Max) {
		return errors.New("buildertest: rank mismatch")
	}
	p.shapes[input] = r
	return nil
}
