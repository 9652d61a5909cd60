package outputproviders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/cloudshovel/pkg/utils"
)

// GetFullPath constructs the full file path from filename and output path
func GetFullPath(filename string, outputPath string) string {
	return filepath.Join(outputPath, filename)
}

// DefaultFileName builds "<prefix>-<parts...>.<ext>" with empty parts skipped.
func DefaultFileName(prefix, ext string, parts ...string) string {
	name := []string{prefix}
	for _, p := range parts {
		if p != "" {
			name = append(name, p)
		}
	}
	return fmt.Sprintf("%s.%s", strings.Join(name, "-"), ext)
}

// create opens fullpath for writing, creating parent directories.
func create(fullpath string) (*os.File, error) {
	if err := utils.EnsureFileDirectory(fullpath); err != nil {
		return nil, err
	}
	return os.Create(fullpath)
}
