package blob

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Filesystem stores blobs as files under a root directory. Writes go through
// a temp file and rename so a crash mid-write never leaves a partial blob
// behind.
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem store rooted at the given directory,
// accepting either a plain path or a file:// URL.
func NewFilesystem(root string) (*Filesystem, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o755)
	if err != nil {
		return nil, err
	}

	return &Filesystem{root: cleanRoot}, nil
}

func (f *Filesystem) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

func (f *Filesystem) Read(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return data, nil
}

func (f *Filesystem) Write(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	target := f.path(key)

	err := os.MkdirAll(filepath.Dir(target), 0o755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return err
	}

	err = tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())

		return err
	}

	return os.Rename(tmp.Name(), target)
}

func (f *Filesystem) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := os.Remove(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}

		return err
	}

	return nil
}

func (f *Filesystem) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (f *Filesystem) List(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)

	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}

		key := path.Clean(filepath.ToSlash(rel))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	return keys, nil
}

func (f *Filesystem) HealthCheck(_ context.Context) error {
	_, err := os.Stat(f.root)
	if os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return err
}

func (f *Filesystem) Close() error {
	return nil
}
