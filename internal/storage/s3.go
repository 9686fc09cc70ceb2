package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"canto/internal/config"
)

// S3Archiver copies pipeline artifacts to an S3-compatible bucket.
type S3Archiver struct {
	client *minio.Client
	bucket string
	host   string
}

// NewS3Archiver connects to the bucket and checks that it exists.
func NewS3Archiver(ctx context.Context, cfg config.S3) (*S3Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		host:   fmt.Sprintf("%s://%s", scheme, cfg.Endpoint),
	}, nil
}

// Archive uploads data under key and returns its URL.
func (a *S3Archiver) Archive(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-at": time.Now().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return objectURL(a.host, a.bucket, key), nil
}

func objectURL(host, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", host, bucket, (&url.URL{Path: path.Clean(key)}).EscapedPath())
}
