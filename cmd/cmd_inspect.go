// cmd_inspect.go - inspect Command
// Hauptfunktionen: InspectHandler
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/trtforge/onnx2trt/builder"
	"github.com/trtforge/onnx2trt/envconfig"
	"github.com/trtforge/onnx2trt/logutil"
	"github.com/trtforge/onnx2trt/onnx"
)

// InspectHandler - Gibt Inputs, Outputs und Opsets eines ONNX-Modells aus
func InspectHandler(cmd *cobra.Command, args []string) error {
	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))

	m, err := onnx.InspectFile(args[0])
	if err != nil {
		return &builder.IOError{Op: "inspect", Path: args[0], Err: err}
	}

	printInspect(cmd.OutOrStdout(), m)
	return nil
}
