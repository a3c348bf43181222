package infrastructure

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

const (
	claimSuffix   = ".serving"
	partialSuffix = ".part"
)

// TempFileManager allocates, serves and reclaims downloaded files in the scratch directory
type TempFileManager struct {
	fs     afero.Fs
	dir    string
	ext    string
	logger *zap.Logger
	now    func() time.Time
}

// NewTempFileManager creates the scratch directory if needed
func NewTempFileManager(fs afero.Fs, dir, ext string, logger *zap.Logger) (*TempFileManager, error) {
	if dir == "" {
		return nil, fmt.Errorf("scratch directory not configured")
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &TempFileManager{
		fs:     fs,
		dir:    dir,
		ext:    ext,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Allocate returns a fresh output path. The file itself is created by the extractor.
func (m *TempFileManager) Allocate() (*domain.TempFile, error) {
	name := uuid.New().String() + m.ext
	return &domain.TempFile{
		Name:      name,
		Path:      filepath.Join(m.dir, name),
		CreatedAt: m.now(),
	}, nil
}

// Stat returns file info for a downloaded file
func (m *TempFileManager) Stat(name string) (os.FileInfo, error) {
	if err := domain.ValidateFilename(name); err != nil {
		return nil, err
	}
	return m.fs.Stat(filepath.Join(m.dir, name))
}

// Remove deletes a file and any partial download left next to it
func (m *TempFileManager) Remove(name string) error {
	if err := domain.ValidateFilename(name); err != nil {
		return err
	}
	var result *multierror.Error
	for _, candidate := range []string{name, name + partialSuffix} {
		err := m.fs.Remove(filepath.Join(m.dir, candidate))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Claim takes exclusive ownership of a file for serving. The file is renamed
// first, so a second claim for the same name fails with os.ErrNotExist.
// The returned release func closes it and deletes it once completed is true.
// Partial transfers and failed deletes are left to Reclaim.
func (m *TempFileManager) Claim(name string) (io.ReadCloser, os.FileInfo, func(completed bool), error) {
	if err := domain.ValidateFilename(name); err != nil {
		return nil, nil, nil, err
	}

	src := filepath.Join(m.dir, name)
	claimed := src + claimSuffix
	if err := m.fs.Rename(src, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, os.ErrNotExist
		}
		if _, statErr := m.fs.Stat(src); errors.Is(statErr, os.ErrNotExist) {
			return nil, nil, nil, os.ErrNotExist
		}
		return nil, nil, nil, fmt.Errorf("failed to claim %s: %w", name, err)
	}

	f, err := m.fs.Open(claimed)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	release := func(completed bool) {
		f.Close()
		if !completed {
			m.logger.Warn("Served file incompletely, leaving it for reclaim", zap.String("file", name))
			return
		}
		if err := m.fs.Remove(claimed); err != nil {
			m.logger.Warn("Failed to delete served file, leaving it for reclaim",
				zap.String("file", name), zap.Error(err))
			return
		}
		m.logger.Debug("Deleted served file", zap.String("file", name))
	}
	return f, info, release, nil
}

// Reclaim deletes scratch files older than maxAge, including partial and
// claimed leftovers. It returns the number of files deleted.
func (m *TempFileManager) Reclaim(maxAge time.Duration) (int, error) {
	entries, err := afero.ReadDir(m.fs, m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list scratch directory: %w", err)
	}

	cutoff := m.now().Add(-maxAge)
	deleted := 0
	var result *multierror.Error
	for _, entry := range entries {
		if entry.IsDir() || !m.owns(entry.Name()) {
			continue
		}
		if !entry.ModTime().Before(cutoff) {
			continue
		}
		if err := m.fs.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				result = multierror.Append(result, fmt.Errorf("failed to delete %s: %w", entry.Name(), err))
			}
			continue
		}
		deleted++
		m.logger.Info("Deleted old temp file", zap.String("file", entry.Name()), zap.Time("modified", entry.ModTime()))
	}
	return deleted, result.ErrorOrNil()
}

// owns reports whether a scratch entry was produced by a download
func (m *TempFileManager) owns(name string) bool {
	if m.ext == "" {
		return true
	}
	return strings.Contains(name, m.ext)
}
