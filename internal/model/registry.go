package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from
// filenames. ID is the full filename (including extension); Path is the
// absolute file path. Family is inferred from the filename prefix and selects
// the executor backend.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		models = append(models, types.Model{
			ID:     name,
			Name:   name,
			Path:   p,
			Family: familyFromName(name),
			SizeMB: fileSizeMB(p),
		})
	}
	return models, nil
}

// familyFromName takes the leading letters of a filename as the model family,
// e.g. "llama-3.1-8b-q4.gguf" -> "llama".
func familyFromName(name string) string {
	name = strings.ToLower(name)
	for i, r := range name {
		if r < 'a' || r > 'z' {
			return name[:i]
		}
	}
	return strings.TrimSuffix(name, ".gguf")
}

// fileSizeMB returns the artifact size in MB, minimum 1 so budget math never
// sees a zero-sized model.
func fileSizeMB(path string) int {
	fi, err := os.Stat(path)
	if err != nil {
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
