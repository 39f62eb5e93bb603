package sevenzip

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Sink receives decoded entry bytes during extraction: the coder-chain
// orchestrator only produces byte slices, and something above it decides
// where those bytes end up.
type Sink interface {
	// CreateFile opens name for writing within the sink and returns a
	// WriteCloser for its contents. Intermediate directories are created as
	// needed.
	CreateFile(name string, mode os.FileMode) (io.WriteCloser, error)
	// CreateDir ensures name exists as a directory within the sink.
	CreateDir(name string, mode os.FileMode) error
}

// FsSink extracts entries onto an afero filesystem rooted at Root, the
// idiomatic-Go analogue of the "extract to a destination path" target every
// 7z CLI tool offers.
type FsSink struct {
	Fs   afero.Fs
	Root string
}

// NewFsSink returns an FsSink rooted at root on the OS filesystem.
func NewFsSink(root string) *FsSink {
	return &FsSink{Fs: afero.NewOsFs(), Root: root}
}

// resolve joins name onto the sink's root and rejects any entry whose
// relative path would escape it (a "Zip Slip" guard, since 7z entry names
// come straight off an untrusted archive).
func (s *FsSink) resolve(name string) (string, error) {
	full := filepath.Join(s.Root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.Root, full)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("sevenzip: entry %q escapes extraction root", name)
	}
	return full, nil
}

func (s *FsSink) CreateFile(name string, mode os.FileMode) (io.WriteCloser, error) {
	full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := s.Fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("sevenzip: create parent directories for %q: %w", name, err)
	}
	if mode == 0 {
		mode = 0o644
	}
	f, err := s.Fs.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, fmt.Errorf("sevenzip: create %q: %w", name, err)
	}
	return f, nil
}

func (s *FsSink) CreateDir(name string, mode os.FileMode) error {
	full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if mode == 0 {
		mode = 0o755
	}
	if err := s.Fs.MkdirAll(full, mode); err != nil {
		return fmt.Errorf("sevenzip: create directory %q: %w", name, err)
	}
	return nil
}
