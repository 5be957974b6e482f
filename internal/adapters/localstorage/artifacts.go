// Package localstorage manages the directory completed downloads live in.
package localstorage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifacts resolves artifact filenames to paths under a single base
// directory.
type Artifacts struct {
	BaseDir string
}

// New creates an Artifacts store rooted at baseDir.
func New(baseDir string) *Artifacts {
	return &Artifacts{BaseDir: baseDir}
}

// Ensure creates the base directory if it does not exist.
func (a *Artifacts) Ensure() error {
	if err := os.MkdirAll(a.BaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory %s: %w", a.BaseDir, err)
	}
	return nil
}

// PathFor returns the path for filename inside the base directory. Names
// containing separators or traversal elements are rejected.
func (a *Artifacts) PathFor(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	return filepath.Join(a.BaseDir, filename), nil
}

// Exists reports whether filename is present as a regular file.
func (a *Artifacts) Exists(filename string) bool {
	path, err := a.PathFor(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
