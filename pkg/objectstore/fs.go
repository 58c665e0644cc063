package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const metadataSuffix = ".meta.json"

// FS is a filesystem-backed ObjectStore. Buckets are directories under the
// root; metadata lives next to each object in a JSON sidecar file.
type FS struct {
	root string
}

// NewFS creates an object store rooted at the given directory.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &FS{root: root}, nil
}

func (f *FS) GetObject(_ context.Context, bucket, key string) (*Object, error) {
	path, err := f.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}

	obj := &Object{Body: body}
	meta, err := os.ReadFile(path + metadataSuffix)
	if err == nil {
		if err := json.Unmarshal(meta, &obj.Metadata); err != nil {
			return nil, fmt.Errorf("decode object metadata %s/%s: %w", bucket, key, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read object metadata %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (f *FS) PutObject(_ context.Context, bucket, key string, obj *Object) error {
	path, err := f.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	if err := os.WriteFile(path, obj.Body, 0o644); err != nil {
		return fmt.Errorf("write object %s/%s: %w", bucket, key, err)
	}

	if len(obj.Metadata) == 0 {
		return nil
	}
	meta, err := json.Marshal(obj.Metadata)
	if err != nil {
		return fmt.Errorf("encode object metadata: %w", err)
	}
	if err := os.WriteFile(path+metadataSuffix, meta, 0o644); err != nil {
		return fmt.Errorf("write object metadata %s/%s: %w", bucket, key, err)
	}
	return nil
}

// objectPath resolves bucket/key under the root, rejecting traversal
// attempts.
func (f *FS) objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", fmt.Errorf("bucket and key must be non-empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Join(bucket, key)), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object path %s/%s", bucket, key)
		}
	}
	return filepath.Join(f.root, bucket, filepath.FromSlash(key)), nil
}
