// Package local keeps model records, archived pages, and checkpoint snapshots
// on the local filesystem. Every write goes through a temp file and rename so
// readers never observe a partial file.
package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem stores.
type Config struct {
	// BaseDir is the root directory for the store's files.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ensureDir creates dir when missing and checks that it is writable.
func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("base directory is required")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return errors.New("base directory path is not a directory")
	}

	testFile := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return fmt.Errorf("failed to clean up test file: %w", err)
	}
	return nil
}

// within joins rel onto base and rejects results that escape base.
func within(base, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("path is required")
	}
	cleanBase := filepath.Clean(base)
	full := filepath.Clean(filepath.Join(cleanBase, rel))
	if !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return full, nil
}
