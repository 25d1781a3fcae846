package credential

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// StorageKey is the fixed key the credential is stored under.
const StorageKey = "pagespeed_api_key"

// FileBackend stores the key in a small JSON document on local disk.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// DefaultPath returns $XDG_CONFIG_HOME/vitals-dashboard/credential.json,
// or the ~/.config equivalent. Empty when no home directory is known.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "vitals-dashboard", "credential.json")
}

func (f *FileBackend) Load(context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	return doc[StorageKey], nil
}

func (f *FileBackend) Save(_ context.Context, key string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(map[string]string{StorageKey: key})
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileBackend) Clear(context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
