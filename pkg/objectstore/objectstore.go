// Package objectstore provides bucket/key object storage for uploaded CSV
// files, with per-object string metadata.
package objectstore

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when no object exists at the requested
// bucket and key.
var ErrObjectNotFound = errors.New("object not found")

// MetadataUserID is the metadata key carrying the uploading user's ID.
const MetadataUserID = "userid"

// Object is a stored blob with its metadata.
type Object struct {
	Metadata map[string]string
	Body     []byte
}

// ObjectStore reads and writes objects addressed by bucket and key.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) (*Object, error)
	PutObject(ctx context.Context, bucket, key string, obj *Object) error
}
