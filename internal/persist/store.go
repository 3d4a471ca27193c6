// Package persist manages on-disk scratch documents backing widget surfaces.
package persist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// ScratchPrefix starts the name of every document the store writes.
const ScratchPrefix = "ascart_widget_"

const scratchExt = ".html"

// ScratchStore writes and removes widget documents in one directory.
type ScratchStore struct {
	dir string
	log pslog.Logger
}

// NewScratchStore constructs a store rooted at dir, or the OS temp dir when
// dir is empty.
func NewScratchStore(dir string) (*ScratchStore, error) {
	return NewScratchStoreWithLogger(dir, nil)
}

// NewScratchStoreWithLogger constructs a store with logging.
func NewScratchStoreWithLogger(dir string, logger pslog.Logger) (*ScratchStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("scratch_dir", dir)
	}
	return &ScratchStore{dir: dir, log: logger}, nil
}

// Dir returns the scratch directory.
func (s *ScratchStore) Dir() string {
	return s.dir
}

// Path returns the document path for name.
func (s *ScratchStore) Path(name string) string {
	clean := sanitize(name)
	if clean == "" {
		clean = "unknown"
	}
	return filepath.Join(s.dir, ScratchPrefix+clean+scratchExt)
}

// Write replaces the document for name atomically and returns its path.
func (s *ScratchStore) Write(name string, data []byte) (string, error) {
	path := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, ".scratch-*.tmp")
	if err != nil {
		s.warn("scratch write failed", name, err)
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.warn("scratch write failed", name, err)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("scratch write failed", name, err)
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("scratch write failed", name, err)
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("scratch write failed", name, err)
		return "", err
	}
	if s.log != nil {
		s.log.Trace("scratch write ok", "name", name, "bytes", len(data))
	}
	return path, nil
}

// Read returns the document for name.
func (s *ScratchStore) Read(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Remove deletes the document for name. A missing document is not an error.
func (s *ScratchStore) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	s.warn("scratch remove failed", name, err)
	return err
}

// Sweep removes every document left behind by a previous run and returns how
// many were deleted.
func (s *ScratchStore) Sweep() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, ScratchPrefix+"*"+scratchExt))
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if s.log != nil && removed > 0 {
		s.log.Info("scratch sweep", "removed", removed)
	}
	return removed, errors.Join(errs...)
}

func (s *ScratchStore) warn(msg, name string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "name", name, "err", err)
	}
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
