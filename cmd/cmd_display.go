// cmd_display.go - Tabellen-Ausgaben fuer Build-Zusammenfassung und inspect
// Hauptfunktionen: printSummary, printInspect, newTable
package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/trtforge/onnx2trt/builder"
	"github.com/trtforge/onnx2trt/onnx"
)

// newTable - Tabelle links ausgerichtet, ohne Rahmen und Trennlinie
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// printSummary - Zeigt die abgeleiteten Build-Einstellungen vor dem Build
func printSummary(w io.Writer, cfg builder.BuildConfig, plan builder.Plan, model *onnx.Model) {
	data := [][]string{
		{"model", cfg.ModelPath},
		{"precision", string(plan.Precision)},
		{"network flags", plan.NetworkFlags.String()},
		{"builder flags", plan.BuilderFlags.String()},
		{"workspace", formatBytes(plan.WorkspaceBytes)},
	}

	if model != nil {
		data = append(data, []string{"nodes", strconv.Itoa(model.NodeCount())})
	}

	if cfg.QAT && cfg.Precision == builder.PrecisionINT8 {
		data = append(data, []string{"calibration", "skipped (qat)"})
	}

	if plan.Calibrate {
		data = append(data,
			[]string{"calibration", fmt.Sprintf("%s, %d x %d images of %dpx", plan.Algorithm, cfg.Calib.NumBatches, cfg.Calib.BatchSize, cfg.Calib.ImageSize)},
			[]string{"calibration images", cfg.Calib.ImageDir},
			[]string{"calibration cache", cfg.Calib.CachePath},
		)
	}

	if p := plan.Profile; p != nil {
		data = append(data, []string{"profile", fmt.Sprintf("%s min=%s opt=%s max=%s", p.Input, p.Range.Min, p.Range.Opt, p.Range.Max)})
	}

	for _, lp := range plan.LayerPrecisions {
		data = append(data, []string{"layer " + lp.Name, lp.DataType.String()})
	}

	data = append(data, []string{"output", cfg.EnginePath()})

	table := newTable(w, "SETTING", "VALUE")
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintln(w)
}

// printInspect - Zeigt Metadaten, Inputs, Outputs und Operatoren eines Modells
func printInspect(w io.Writer, m *onnx.Model) {
	producer := strings.TrimSpace(m.ProducerName + " " + m.ProducerVersion)
	if producer == "" {
		producer = "unknown"
	}

	info := newTable(w, "PROPERTY", "VALUE")
	info.AppendBulk([][]string{
		{"producer", producer},
		{"ir version", strconv.FormatInt(m.IRVersion, 10)},
		{"opsets", formatOpsets(m.Opsets)},
		{"nodes", strconv.Itoa(m.NodeCount())},
		{"initializers", strconv.Itoa(len(m.Initializers))},
		{"quantized (Q/DQ)", strconv.FormatBool(m.IsQuantized())},
	})
	info.Render()
	fmt.Fprintln(w)

	values := newTable(w, "KIND", "NAME", "TYPE", "SHAPE")
	for _, in := range m.GraphInputs() {
		values.Append([]string{"input", in.Name, in.ElemType.String(), in.ShapeString()})
	}
	for _, out := range m.Outputs {
		values.Append([]string{"output", out.Name, out.ElemType.String(), out.ShapeString()})
	}
	values.Render()
	fmt.Fprintln(w)

	ops := newTable(w, "OPERATOR", "COUNT")
	for _, op := range slices.Sorted(maps.Keys(m.OpCounts)) {
		ops.Append([]string{op, strconv.Itoa(m.OpCounts[op])})
	}
	ops.Render()
}

func formatOpsets(opsets map[string]int64) string {
	parts := make([]string, 0, len(opsets))
	for _, domain := range slices.Sorted(maps.Keys(opsets)) {
		name := domain
		if name == "" {
			name = "ai.onnx"
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, opsets[domain]))
	}
	return strings.Join(parts, ", ")
}

func formatBytes(b uint64) string {
	switch {
	case b >= 1<<30 && b%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", b>>30)
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(b)/(1<<20))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
