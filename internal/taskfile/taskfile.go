// Package taskfile persists accepted task batches to disk.
package taskfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	. "github.com/taskmill/taskmill/internal/logging"
	"github.com/taskmill/taskmill/internal/tasks"
)

// Supported output formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormat reports whether format names a supported encoding
func ValidFormat(format string) bool {
	return format == FormatJSON || format == FormatYAML
}

// Write encodes the batch to path in the given format. The write goes
// through a temp file in the same directory so a crash never leaves a
// half-written task file behind.
func Write(path string, batch *tasks.Batch, format string) error {
	var data []byte
	var err error

	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(batch, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML:
		data, err = yaml.Marshal(batch)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".taskmill-*")
	if err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write tasks: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write tasks: %w", err)
	}

	L_info("taskfile: wrote batch", "path", path, "format", format, "tasks", len(batch.Tasks))
	return nil
}

// Read loads a previously written task file, detecting the format from the
// extension (.yaml/.yml is YAML, everything else JSON).
func Read(path string) (*tasks.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	var batch tasks.Batch
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &batch)
	default:
		err = json.Unmarshal(data, &batch)
	}
	if err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}
	return &batch, nil
}
