package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/casedesk/pkg/apperr"
)

// FileSystemObjectStore keeps attachments under a local root directory.
// It serves development setups without S3.
type FileSystemObjectStore struct {
	rootDir string
}

// NewFileSystemObjectStore creates the root directory if needed
func NewFileSystemObjectStore(rootDir string) (*FileSystemObjectStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemObjectStore{rootDir: rootDir}, nil
}

// path maps key below rootDir, rejecting keys that would escape it
func (s *FileSystemObjectStore) path(key string) (string, error) {
	for _, segment := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return "", apperr.Validation("invalid object key")
		}
	}
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", apperr.Validation("invalid object key")
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(clean)), nil
}

func (s *FileSystemObjectStore) PutObject(ctx context.Context, key string, content io.Reader, contentType string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

func (s *FileSystemObjectStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, apperr.New(apperr.KindNotFound, "object "+key+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

func (s *FileSystemObjectStore) DeleteObject(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
