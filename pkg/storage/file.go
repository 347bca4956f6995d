package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jllopis/slotsave/pkg/codec"
	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/slot"
)

// FileStorage keeps one file per slot at {dir}/{slotName}{ext}.
// Writes go to a temp file in the same directory and are renamed over the
// target, so a crash mid-write never leaves a partial slot file behind.
type FileStorage struct {
	dir    string
	ext    string
	codec  codec.Codec
	logger *slog.Logger
}

// FileOption configures a FileStorage.
type FileOption func(*FileStorage)

// WithFileLogger sets the logger used for missing-file warnings.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(f *FileStorage) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFileStorage creates a file-backed storage rooted at dir.
func NewFileStorage(dir, ext string, c codec.Codec, opts ...FileOption) (*FileStorage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, saveerrors.New(saveerrors.CodeInvalidInput, "storage directory is required", nil)
	}
	if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
		return nil, saveerrors.New(saveerrors.CodeInvalidInput, fmt.Sprintf("invalid slot extension %q", ext), nil)
	}
	if c == nil {
		c = codec.JSON{}
	}
	f := &FileStorage{
		dir:    dir,
		ext:    ext,
		codec:  c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Dir returns the directory holding slot files.
func (f *FileStorage) Dir() string {
	return f.dir
}

// Path returns the file path of a slot.
func (f *FileStorage) Path(name string) string {
	return filepath.Join(f.dir, slot.FileName(name, f.ext))
}

// Read decodes the slot file. A missing file reads as an empty container.
func (f *FileStorage) Read(ctx context.Context, name string) (slot.Container, error) {
	path := f.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.logger.DebugContext(ctx, "no slot file found when loading", "path", path)
			return slot.Container{}, nil
		}
		return nil, saveerrors.New(saveerrors.CodeStorage, "read slot file", err).WithContext("path", path)
	}
	c, err := f.codec.Decode(data)
	if err != nil {
		return nil, saveerrors.New(saveerrors.CodeCorrupt, "decode slot file", err).
			WithContext("path", path).
			WithContext("codec", f.codec.Name())
	}
	return c, nil
}

// Write encodes c and atomically replaces the slot file.
func (f *FileStorage) Write(_ context.Context, name string, c slot.Container) error {
	data, err := f.codec.Encode(c)
	if err != nil {
		return saveerrors.New(saveerrors.CodeInternal, "encode slot", err).WithContext("slot", name)
	}
	path := f.Path(name)
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return saveerrors.New(saveerrors.CodeStorage, "write slot file", err).
			WithContext("path", path).
			WithRecoverable(true)
	}
	return nil
}

// Delete removes the slot file. Missing files are ignored.
func (f *FileStorage) Delete(_ context.Context, name string) error {
	path := f.Path(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return saveerrors.New(saveerrors.CodeStorage, "delete slot file", err).WithContext("path", path)
	}
	return nil
}

// Exists reports whether the slot file is present.
func (f *FileStorage) Exists(_ context.Context, name string) (bool, error) {
	info, err := os.Stat(f.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, saveerrors.New(saveerrors.CodeStorage, "stat slot file", err)
	}
	return info.Mode().IsRegular(), nil
}

// List returns the slot names of regular files matching the extension.
func (f *FileStorage) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, saveerrors.New(saveerrors.CodeStorage, "list slot directory", err).WithContext("dir", f.dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), f.ext)
		if !ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
