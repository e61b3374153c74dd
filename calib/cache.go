// cache.go - Lesen und Schreiben des Kalibrier-Caches
// Hauptfunktionen: ReadCache, WriteCache
package calib

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/trtforge/onnx2trt/builder"
)

// ReadCache gibt den Inhalt der Cache-Datei zurueck. Ein leerer Pfad, eine
// fehlende oder leere Datei ergeben nil, nil.
func ReadCache(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, &builder.IOError{Op: "read calibration cache", Path: path, Err: err}
	}

	if len(data) == 0 {
		return nil, nil
	}

	slog.Info("using calibration cache", "path", path, "bytes", len(data))
	return data, nil
}

// WriteCache schreibt data ueber eine temporaere Datei im Zielverzeichnis und
// benennt sie danach um. Ein leerer Pfad ist ein No-op.
func WriteCache(path string, data []byte) error {
	if path == "" {
		return nil
	}

	if err := writeFileAtomic(path, data); err != nil {
		return &builder.IOError{Op: "write calibration cache", Path: path, Err: err}
	}

	slog.Info("wrote calibration cache", "path", path, "bytes", len(data))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	// CreateTemp legt 0600 an, Cache und Engine sollen wie os.WriteFile lesbar sein
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}
