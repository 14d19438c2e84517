package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AssetStore holds the image files backing catalog records.
type AssetStore interface {
	// Move transfers the file at src into the store under name. src no longer
	// exists afterwards.
	Move(ctx context.Context, src, name, contentType string) error
	Remove(ctx context.Context, name string) error
	// Location describes where name lives, for error reporting.
	Location(name string) string
}

// Presigner is implemented by stores that can hand out time-limited direct
// links to an asset.
type Presigner interface {
	PresignGet(ctx context.Context, name string, expiry time.Duration) (string, error)
}

// MinioStore implements AssetStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// MinioConfig holds connection settings for MinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// KeyPrefix is prepended to every object key.
	KeyPrefix string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.KeyPrefix, "/")}, nil
}

// Move uploads src and removes the local file once the object is stored.
func (m *MinioStore) Move(ctx context.Context, src, name, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := m.client.FPutObject(ctx, m.bucket, m.key(name), src, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		// a failed move must not leave the object behind
		_ = m.client.RemoveObject(ctx, m.bucket, m.key(name), minio.RemoveObjectOptions{})
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Remove deletes an object.
func (m *MinioStore) Remove(ctx context.Context, name string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, m.key(name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for the object behind name.
func (m *MinioStore) PresignGet(ctx context.Context, name string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, m.key(name), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Location returns bucket/key for name.
func (m *MinioStore) Location(name string) string {
	return path.Join(m.bucket, m.key(name))
}

func (m *MinioStore) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}
