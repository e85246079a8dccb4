package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes objects into a directory that the HTTP server also serves
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates dir if needed
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory files are written to
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if key != filepath.Base(key) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	if err := os.WriteFile(filepath.Join(l.dir, key), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return l.baseURL + "/" + key, nil
}
