// Package blobstore implements the object blob adapter (spec.md §4.4):
// download/upload of task archives and translated results against an
// S3-compatible object store, plus presigned URL minting so external
// callers can upload/download without holding credentials.
package blobstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is the capability the coordinator needs from the object blob
// layer.
type Store interface {
	Download(ctx context.Context, uri, localPath string) error
	Upload(ctx context.Context, localPath, bucket, key string) (uri string, err error)
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration, contentType string) (string, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ParseURI splits an "s3://bucket/key" URI into its bucket and key parts
// via a single split on the first '/' after the scheme, per spec.md §4.4
// (a key is free to contain further slashes; only the bucket boundary is
// special).
func ParseURI(uri string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("blobstore: %q is not an s3:// URI", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	idx := strings.IndexByte(rest, '/')
	if idx < 0 || idx == 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("blobstore: %q is missing a bucket or key", uri)
	}
	return rest[:idx], rest[idx+1:], nil
}

// FormatURI is the inverse of ParseURI.
func FormatURI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
