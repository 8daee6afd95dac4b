// Package objectstore keeps uploaded files and hands out their public URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	BucketAvatars     = "avatars"
	BucketAttachments = "post-attachments"
)

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrExists     = errors.New("object already exists")
)

type Bucket interface {
	// Put stores body under key without overwriting and returns its URL.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Remove(ctx context.Context, keys ...string) error
	PublicURL(key string) string
	// KeyFromURL reverses PublicURL for objects of this bucket.
	KeyFromURL(url string) (string, bool)
}

// DiskBucket stores objects under <root>/<name>/<key>. The root directory is
// served read-only by the HTTP layer.
type DiskBucket struct {
	root    string
	name    string
	baseURL string
}

var _ Bucket = (*DiskBucket)(nil)

func NewDiskBucket(root, name, baseURL string) (*DiskBucket, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &DiskBucket{root: root, name: name, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *DiskBucket) Name() string { return b.name }

func (b *DiskBucket) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, b.name, filepath.FromSlash(clean)), nil
}

func (b *DiskBucket) Put(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	p, err := b.path(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, key)
		}
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(p)
		return "", err
	}
	return b.PublicURL(key), nil
}

func (b *DiskBucket) Remove(_ context.Context, keys ...string) error {
	var errs []error
	for _, k := range keys {
		p, err := b.path(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *DiskBucket) PublicURL(key string) string {
	return b.baseURL + "/" + b.name + "/" + key
}

func (b *DiskBucket) KeyFromURL(url string) (string, bool) {
	prefix := b.baseURL + "/" + b.name + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if _, err := b.path(key); err != nil {
		return "", false
	}
	return key, true
}
