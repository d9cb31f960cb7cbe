package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned by Read when no object is stored under the key.
var ErrNotExist = errors.New("object does not exist")

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Name returns the last path element of the object key.
func (o ObjectInfo) Name() string {
	return path.Base(o.Key)
}

// BlobStore reads and writes small documents addressed by key.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// ObjectStore holds uploaded reference documents.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Service is implemented by every backend: S3 and the local directory store.
type Service interface {
	BlobStore
	ObjectStore
}

// JoinKey joins a key prefix and a name with exactly one slash between them.
func JoinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
