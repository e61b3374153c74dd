// errors.go - Fehlerarten des Engine-Builds
// Hauptfunktionen: ConfigError, ParseError, BuildFailure, IOError, Kind
package builder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ConfigError meldet eine ungueltige Build-Konfiguration. Sie entsteht bevor
// irgendeine Methode der Runtime aufgerufen wird.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseError enthaelt alle Meldungen des ONNX-Parsers
type ParseError struct {
	Model    string
	Messages []string
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ONNX parse failed for %s", e.Model)
	switch len(e.Messages) {
	case 0:
	case 1:
		fmt.Fprintf(&sb, ": %s", e.Messages[0])
	default:
		fmt.Fprintf(&sb, " with %d errors: %s", len(e.Messages), strings.Join(e.Messages, "; "))
	}
	return sb.String()
}

// BuildFailure meldet, dass der externe Builder keine Engine geliefert hat.
// Err traegt einen Stacktrace, der mit %+v ausgegeben wird.
type BuildFailure struct {
	Model     string
	Precision Precision
	Err       error
}

func newBuildFailure(model string, p Precision, cause error) *BuildFailure {
	var err error
	if cause == nil {
		err = pkgerrors.New("builder returned no serialized engine")
	} else {
		err = pkgerrors.WithStack(cause)
	}
	return &BuildFailure{Model: model, Precision: p, Err: err}
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("failed to build the TensorRT engine for %s (%s): %v", e.Model, e.Precision, e.Err)
}

func (e *BuildFailure) Unwrap() error {
	return e.Err
}

// Format gibt bei %+v zusaetzlich den Stack der Ursache aus
func (e *BuildFailure) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "failed to build the TensorRT engine for %s (%s): %+v", e.Model, e.Precision, e.Err)
		return
	}
	io.WriteString(s, e.Error()) //nolint:errcheck
}

// IOError meldet eine nicht zugreifbare Datei (Modell, Cache, Ausgabe)
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Kind gibt den Namen der Fehlerart fuer die CLI-Ausgabe zurueck
func Kind(err error) string {
	var (
		configErr *ConfigError
		parseErr  *ParseError
		buildErr  *BuildFailure
		ioErr     *IOError
	)

	switch {
	case errors.As(err, &configErr):
		return "ConfigError"
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.As(err, &buildErr):
		return "BuildFailure"
	case errors.As(err, &ioErr):
		return "IOError"
	default:
		return "Error"
	}
}
