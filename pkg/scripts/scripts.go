// Package scripts holds the shell scripts staged on the analysis instance.
package scripts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	ScanName      = "mount_and_dig.sh"
	InstallerName = "install_ntfs_3g.sh"
)

//go:embed assets/*.sh
var assets embed.FS

// Set is the pair of scripts one run uploads.
type Set struct {
	Scan      []byte
	Installer []byte
}

// Default returns the scripts built into the binary.
func Default() Set {
	scan, _ := assets.ReadFile("assets/" + ScanName)
	installer, _ := assets.ReadFile("assets/" + InstallerName)
	return Set{Scan: scan, Installer: installer}
}

// Load reads the scripts from dir, falling back to the built in copy for
// any script dir does not have. An empty dir returns Default.
func Load(dir string) (Set, error) {
	set := Default()
	if dir == "" {
		return set, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return Set{}, fmt.Errorf("scripts directory: %w", err)
	}
	if !info.IsDir() {
		return Set{}, fmt.Errorf("scripts directory %s is not a directory", dir)
	}

	for name, dst := range map[string]*[]byte{ScanName: &set.Scan, InstallerName: &set.Installer} {
		body, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Set{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(body) == 0 {
			return Set{}, fmt.Errorf("script %s is empty", name)
		}
		*dst = body
	}
	return set, nil
}
