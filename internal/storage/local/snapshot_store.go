// Package local implements a local filesystem snapshot store for raw
// listing HTML, so parsing regressions can be replayed without refetching.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local snapshot store.
type Config struct {
	// BaseDir is the root directory where snapshots will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// SnapshotStore writes raw page HTML to the local filesystem.
type SnapshotStore struct {
	baseDir string
}

// New creates a filesystem-backed SnapshotStore, verifying the base
// directory exists and is writable up front.
func New(cfg Config) (*SnapshotStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &SnapshotStore{baseDir: cfg.BaseDir}, nil
}

// Put writes the page HTML under city/page and returns a file:// URI. The
// relative path is validated against traversal out of the base directory.
func (s *SnapshotStore) Put(_ context.Context, city string, page int, html io.Reader) (string, error) {
	if strings.TrimSpace(city) == "" {
		return "", fmt.Errorf("city is required")
	}

	rel := filepath.Join(sanitize(city), fmt.Sprintf("page-%03d.html", page))
	fullPath := filepath.Join(s.baseDir, rel)

	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	data, err := io.ReadAll(html)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot data: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	return fmt.Sprintf("file://%s", fullPath), nil
}

func sanitize(name string) string {
	clean := strings.ToLower(strings.TrimSpace(name))
	clean = strings.ReplaceAll(clean, " ", "-")
	clean = strings.ReplaceAll(clean, string(filepath.Separator), "-")
	return clean
}
