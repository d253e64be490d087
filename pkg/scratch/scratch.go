package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager hands out per-task temporary files holding one uploaded image each,
// so inference backends that consume file paths can read them. Every file is
// owned by exactly one task and must be removed before the task completes.
type Manager struct {
	dir string
}

type File struct {
	path string
}

func New() *Manager {
	dir := os.Getenv("SCRATCH_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return &Manager{dir: dir}
}

func NewWithDir(dir string) *Manager {
	return &Manager{dir: dir}
}

// Create writes the image bytes into a uniquely named file under the scratch
// directory. The original file name only contributes its extension; backends
// such as YOLO sidecars sniff the format from it.
func (m *Manager) Create(imageName string, data []byte) (*File, error) {
	ext := filepath.Ext(imageName)
	if ext == "" || strings.ContainsAny(ext, "*?[") {
		ext = ".jpg"
	}

	f, err := os.CreateTemp(m.dir, "detect-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write scratch file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close scratch file: %w", err)
	}

	return &File{path: f.Name()}, nil
}

func (f *File) Path() string {
	return f.path
}

// Remove deletes the scratch file. Removing an already-removed file is not an
// error so callers can defer it on every exit path.
func (m *Manager) Remove(f *File) error {
	if f == nil {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
