// Package filex holds small filesystem helpers shared by the server packages.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// Canonical returns the absolute, symlink-resolved form of path.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("eval symlinks %s: %w", abs, err)
	}

	return resolved, nil
}

// Executable returns the canonical path of the running binary.
func Executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("executable: %w", err)
	}
	return Canonical(exe)
}

// WorkDir returns the canonical current working directory.
func WorkDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}
	return Canonical(cwd)
}
