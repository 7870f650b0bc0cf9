package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"tunebox/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MinioBackend stores files as objects in an S3-compatible bucket
type MinioBackend struct {
	client *minio.Client
	bucket string
	logger *logrus.Logger
}

// NewMinioBackend connects to the endpoint and creates the bucket when it
// does not exist yet.
func NewMinioBackend(ctx context.Context, cfg config.MinioConfig, logger *logrus.Logger) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.WithField("bucket", cfg.Bucket).Info("Created storage bucket")
	}

	logger.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"bucket":   cfg.Bucket,
	}).Info("Connected to object storage")

	return &MinioBackend{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Save uploads the reader as an object
func (m *MinioBackend) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	info, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return info.Size, nil
}

// Open stats the object and returns a seekable reader over it
func (m *MinioBackend) Open(ctx context.Context, name string) (Object, error) {
	info, err := m.client.StatObject(ctx, m.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	// The object must outlive the request-scoped stat context
	object, err := m.client.GetObject(context.Background(), m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return &minioObject{Object: object, info: info}, nil
}

// Remove deletes the object
func (m *MinioBackend) Remove(ctx context.Context, name string) error {
	exists, err := m.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the object is present
func (m *MinioBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

type minioObject struct {
	*minio.Object
	info minio.ObjectInfo
}

func (o *minioObject) Size() int64        { return o.info.Size }
func (o *minioObject) ModTime() time.Time { return o.info.LastModified }
