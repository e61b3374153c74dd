// cmd.go - CLI-Einstiegspunkt und Command-Registrierung
// Hauptfunktionen: NewCLI, appendEnvDocs, versionHandler
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trtforge/onnx2trt/builder"
	"github.com/trtforge/onnx2trt/envconfig"
	"github.com/trtforge/onnx2trt/trt"
	"github.com/trtforge/onnx2trt/version"
)

// newRuntime liefert die Builder-Runtime, Tests ersetzen sie durch buildertest
var newRuntime func() (builder.Runtime, error) = trt.New

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit Build als Default-Aktion und inspect
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "onnx2trt",
		Short:         "Convert an ONNX model to a serialized TensorRT engine",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return nil
			}

			return BuildHandler(cmd, args)
		},
	}

	addBuildFlags(rootCmd)
	rootCmd.Flags().Bool("version", false, "Show version information")

	inspectCmd := &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Show inputs, outputs and opsets of an ONNX model",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}

	envVars := envconfig.AsMap()
	appendEnvDocs(rootCmd, []envconfig.EnvVar{
		envVars["ONNX2TRT_DEBUG"],
		envVars["ONNX2TRT_WORKSPACE"],
		envVars["ONNX2TRT_PROFILE_BATCH"],
		envVars["ONNX2TRT_INPUT_NAME"],
		envVars["ONNX2TRT_DECODE_WORKERS"],
		envVars["ONNX2TRT_LETTERBOX"],
		envVars["CUDA_VISIBLE_DEVICES"],
	})
	appendEnvDocs(inspectCmd, []envconfig.EnvVar{envVars["ONNX2TRT_DEBUG"]})

	rootCmd.AddCommand(inspectCmd)

	return rootCmd
}

func versionHandler(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "onnx2trt version is %s\n", version.Version)

	rt, err := newRuntime()
	if err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
		return
	}

	fmt.Fprintf(out, "TensorRT version is %s\n", rt.Version())
}
