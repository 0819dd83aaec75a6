package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the snapshot file written under the state directory.
const DefaultFileName = "state.yaml"

// Compile-time assertion: *FileStore satisfies Persister.
var _ Persister = (*FileStore)(nil)

// FileStore persists the state as a YAML document. Writes go to a temp file
// in the same directory and are renamed into place.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to dir/state.yaml.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, DefaultFileName)}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the snapshot. A missing file yields a zero State.
func (f *FileStore) Load(_ context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("persist: read %s: %w", f.path, err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("persist: parse %s: %w", f.path, err)
	}
	return st, nil
}

// Save writes the snapshot, creating the directory if needed.
func (f *FileStore) Save(_ context.Context, st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("persist: encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("persist: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("persist: rename into %s: %w", f.path, err)
	}
	return nil
}
