package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSource keeps keys as <dir>/<name>.pem.
type FileSource struct {
	dir string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) path(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+".pem"), nil
}

// PrivateKeyPEM implements Source.
func (s *FileSource) PrivateKeyPEM(_ context.Context, name string) ([]byte, error) {
	file, err := s.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(file) // #nosec G304 -- name is validated
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	return b, err
}

// StorePrivateKeyPEM implements Source. Existing keys are overwritten.
func (s *FileSource) StorePrivateKeyPEM(_ context.Context, name string, pem []byte) error {
	file, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	return os.WriteFile(file, pem, 0o600)
}
