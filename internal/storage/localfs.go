package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalStore keeps blobs as files below a root directory of an afero filesystem.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore roots the store at dir on the OS filesystem.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewLocalStoreFs uses fsys as the root of the store.
func NewLocalStoreFs(fsys afero.Fs) *LocalStore {
	return &LocalStore{fs: fsys}
}

func (l *LocalStore) Read(_ context.Context, key string) ([]byte, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(l.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Write replaces the file atomically by renaming a sibling temp file over it.
func (l *LocalStore) Write(_ context.Context, key string, data []byte) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}
	tmp := name + ".tmp"
	if err := afero.WriteFile(l.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := l.fs.Rename(tmp, name); err != nil {
		_ = l.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (l *LocalStore) Upload(_ context.Context, key string, body io.Reader) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}
	if err := afero.WriteReader(l.fs, name, body); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (l *LocalStore) ListObjects(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := afero.Walk(l.fs, "/", func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		key := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		modified := info.ModTime()
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: &modified,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return objects, nil
}

func (l *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	name, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(l.fs, name)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return ok, nil
}

// cleanKey maps an object key onto a rooted path, rejecting keys that would
// escape the store root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object key is required")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.FromSlash(cleaned), nil
}

var _ Service = (*LocalStore)(nil)
