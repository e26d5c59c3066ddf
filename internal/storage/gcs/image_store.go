// Package gcs provides an image store backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to write cards to GCS.
type Config struct {
	Bucket string
	Prefix string
	// PublicBaseURL is prepended to the served asset path.
	PublicBaseURL string
}

// ImageStore uploads rendered cards to a configured GCS bucket.
type ImageStore struct {
	client  *storage.Client
	bucket  string
	prefix  string
	baseURL string
}

// New creates a GCS-backed image store.
func New(client *storage.Client, cfg Config) (*ImageStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ImageStore{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// SavePNG uploads the encoded card as <prefix>/<jobID>.png and returns the
// gs:// path plus the public URL the asset is served at.
func (s *ImageStore) SavePNG(ctx context.Context, jobID string, data []byte) (string, string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", "", fmt.Errorf("job id is required")
	}

	object := jobID + ".png"
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "image/png"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", "", fmt.Errorf("close writer: %w", err)
	}

	outputPath := fmt.Sprintf("gs://%s/%s", s.bucket, object)
	imageURL := fmt.Sprintf("%s/assets/og/%s.png", s.baseURL, jobID)
	return outputPath, imageURL, nil
}
