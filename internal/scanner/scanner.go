// Package scanner finds statement files on disk
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fjacquet/ebics-mt940/internal/logging"
)

// DefaultExtensions are the file extensions banks commonly use for MT940
// and MT942 exports.
var DefaultExtensions = []string{".sta", ".mt940", ".mt942", ".940", ".942", ".txt"}

// Scanner collects statement files from files and directories.
type Scanner struct {
	extensions map[string]bool
	logger     logging.Logger
}

// New creates a Scanner matching extensions case-insensitively. No
// extensions means DefaultExtensions.
func New(logger logging.Logger, extensions ...string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	s := &Scanner{
		extensions: make(map[string]bool, len(extensions)),
		logger:     logging.OrDefault(logger).WithField("component", "scanner"),
	}
	for _, ext := range extensions {
		s.extensions[strings.ToLower(ext)] = true
	}
	return s
}

// ScanPaths returns the matching files found under paths, sorted. A path
// naming a file is returned as is, whatever its extension. Directories are
// walked recursively.
func (s *Scanner) ScanPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := s.scanDirectory(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scanner) scanDirectory(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Error walking path")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if s.extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		} else {
			s.logger.Debug("Skipping file", logging.Field{Key: logging.FieldFile, Value: path})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}
	return files, nil
}
