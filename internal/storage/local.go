package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage moves uploads into a directory served by the HTTP server.
// Used when no bucket is configured.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates dir if needed. baseURL is the path the directory is
// served under, e.g. "/media".
func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir reports the directory files are stored in.
func (s *LocalStorage) Dir() string { return s.dir }

// Upload copies localPath into the storage directory and returns its URL.
func (s *LocalStorage) Upload(ctx context.Context, localPath string) (string, error) {
	defer removeSpooled(ctx, localPath)

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("local storage: open %s: %w", localPath, err)
	}
	defer src.Close()

	key := objectKey("", localPath)
	dst, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", fmt.Errorf("local storage: create %s: %w", key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("local storage: copy %s: %w", key, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("local storage: close %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete removes the file behind url. Missing files are not an error.
func (s *LocalStorage) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return fmt.Errorf("local storage: %w", err)
	}
	if key != filepath.Base(key) {
		return fmt.Errorf("local storage: refusing to delete %q outside the media directory", url)
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local storage: delete %s: %w", key, err)
	}
	return nil
}
