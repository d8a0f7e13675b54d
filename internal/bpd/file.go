package bpd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"fjacquet/ebics-mt940/internal/logging"
)

// FileStore keeps one <code>.bpd file per bank in a directory.
type FileStore struct {
	dir    string
	logger logging.Logger
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, logger logging.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("bpd: file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("bpd: create directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logging.OrDefault(logger)}, nil
}

// path returns the file of a bank. Files written by older versions were
// named <country>_<code>.bpd; such a file is renamed on first access.
func (s *FileStore) path(country, code int) (string, error) {
	file := filepath.Join(s.dir, strconv.Itoa(code)+".bpd")
	legacy := filepath.Join(s.dir, fmt.Sprintf("%d_%d.bpd", country, code))
	if exists(legacy) && !exists(file) {
		if err := os.Rename(legacy, file); err != nil {
			return "", fmt.Errorf("bpd: migrate %s: %w", legacy, err)
		}
		s.logger.Info("Migrated legacy BPD file",
			logging.Field{Key: logging.FieldFile, Value: file})
	}
	return file, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *FileStore) Version(ctx context.Context, country, code int) (int, bool, error) {
	return versionOf(ctx, s, country, code, s.logger)
}

func (s *FileStore) Get(_ context.Context, country, code int) (string, bool, error) {
	file, err := s.path(country, code)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(file) // #nosec G304 -- path built from numeric bank ids
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("bpd: read %s: %w", file, err)
	}
	return string(b), true, nil
}

func (s *FileStore) Save(_ context.Context, country, code int, bpd string) error {
	file, err := s.path(country, code)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, []byte(bpd), 0o600); err != nil {
		return fmt.Errorf("bpd: write %s: %w", file, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, country, code int) error {
	file, err := s.path(country, code)
	if err != nil {
		return err
	}
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("bpd: delete %s: %w", file, err)
	}
	return nil
}
