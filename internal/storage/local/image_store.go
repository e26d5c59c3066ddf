// Package local implements a local filesystem image store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem image store.
type Config struct {
	// Dir is the directory where rendered cards are written.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// PublicBaseURL is prepended to the served asset path.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// ImageStore writes rendered cards to the local filesystem.
type ImageStore struct {
	dir     string
	baseURL string
}

// New creates a local filesystem-backed image store. The directory is
// created if missing and probed for writability.
func New(cfg Config) (*ImageStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("images directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create images directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat images directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("images directory path is not a directory")
	}

	testFile := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("images directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ImageStore{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Dir returns the directory rendered cards are written to.
func (s *ImageStore) Dir() string {
	return s.dir
}

// SavePNG writes the encoded card under <dir>/<jobID>.png and returns the
// output path plus the public URL the asset is served at.
func (s *ImageStore) SavePNG(_ context.Context, jobID string, data []byte) (string, string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", "", fmt.Errorf("job id is required")
	}

	fullPath := filepath.Join(s.dir, jobID+".png")

	// Reject ids that would escape the images directory.
	cleanDir := filepath.Clean(s.dir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanDir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path traversal detected")
	}

	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write image: %w", err)
	}

	return fullPath, fmt.Sprintf("%s/assets/og/%s.png", s.baseURL, jobID), nil
}
