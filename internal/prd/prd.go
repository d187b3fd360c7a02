// Package prd loads the requirements document handed to the generator.
package prd

import (
	"fmt"
	"os"
	"strings"

	. "github.com/taskmill/taskmill/internal/logging"
	"github.com/taskmill/taskmill/internal/tokens"
)

// MaxDocumentBytes guards against feeding an arbitrarily large file into a
// prompt. Documents past this size are a mistake, not a requirement doc.
const MaxDocumentBytes = 2 * 1024 * 1024

// Read loads and sanity-checks a requirements document
func Read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("read document: %s is a directory", path)
	}
	if info.Size() > MaxDocumentBytes {
		return "", fmt.Errorf("read document: %s is %d bytes, limit is %d", path, info.Size(), MaxDocumentBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("read document: %s is empty", path)
	}

	L_debug("prd: document loaded",
		"path", path,
		"bytes", len(data),
		"estTokens", tokens.Get().Count(text))
	return text, nil
}
