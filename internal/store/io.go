package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// readJSON decodes the file at path into out. found is false when the file
// is absent; out is left untouched in that case.
func readJSON(path string, out any) (found bool, err error) {
	raw, err := readFile(path)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// readFile returns nil, nil for a missing file.
func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return raw, nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, raw, perm)
}

// writeFile replaces path atomically. The data is synced to a sibling temp
// file which is then renamed over the target, so readers see either the old
// contents or the new ones.
func writeFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadOrCreateFile returns the contents of path. On first use it writes the
// output of create there atomically, so an interrupted start never leaves a
// truncated file behind.
func LoadOrCreateFile(path string, perm os.FileMode, create func() ([]byte, error)) ([]byte, error) {
	raw, err := readFile(path)
	if err != nil || raw != nil {
		return raw, err
	}
	raw, err = create()
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, raw, perm); err != nil {
		return nil, err
	}
	return raw, nil
}
