package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("blob: object not found")
	ErrInvalidKey     = errors.New("blob: invalid key")
)

// Store is a flat key/value object store addressed by string keys.
// Implementations must return ErrObjectNotFound (possibly wrapped) from
// Head and Get when the key does not exist.
type Store interface {
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, params *PutParams) (*ObjectInfo, error)
	// Delete is idempotent. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
}

type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"contentType,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value. Keys are compared lower-cased since S3
// normalizes user metadata keys.
func (o *ObjectInfo) Meta(name string) (string, bool) {
	if o == nil || o.Metadata == nil {
		return "", false
	}
	v, ok := o.Metadata[normalizeMetaKey(name)]
	return v, ok
}

type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

type PutParams struct {
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

func normalizeMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[normalizeMetaKey(k)] = v
	}
	return out
}
