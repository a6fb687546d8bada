package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// ArtifactBucket uploads and removes packaged delivery artifacts in a
// single bucket. Remove is idempotent: removing an absent object reports
// success, which keeps repeated compensation safe.
type ArtifactBucket struct {
	client *minio.Client
	bucket string
}

func NewArtifactBucket(client *minio.Client, bucket string) (*ArtifactBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &ArtifactBucket{client: client, bucket: bucket}, nil
}

func (b *ArtifactBucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(body), int64(len(body)), opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (b *ArtifactBucket) Remove(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
