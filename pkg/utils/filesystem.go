package utils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// EnsureDirectoryExists creates dirPath and its parents. It is safe to call
// on an existing directory.
func EnsureDirectoryExists(dirPath string) error {
	if dirPath == "" || dirPath == "." {
		return nil
	}

	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		absPath = dirPath
	}

	if info, err := os.Stat(absPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path %s exists but is not a directory", absPath)
		}
		return nil
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", absPath, err)
	}

	slog.Debug("Created directory", "path", absPath)
	return nil
}

// EnsureFileDirectory creates the directory a file will be written to.
func EnsureFileDirectory(filePath string) error {
	return EnsureDirectoryExists(filepath.Dir(filePath))
}
