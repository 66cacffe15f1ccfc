package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/m3rciful/datingbot/core/logger"
)

// MinioConfig describes an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" envconfig:"PHOTOS_ENDPOINT"`
	AccessKey string `yaml:"access_key" envconfig:"PHOTOS_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"PHOTOS_SECRET_KEY"`
	Bucket    string `yaml:"bucket" envconfig:"PHOTOS_BUCKET"`
	Region    string `yaml:"region" envconfig:"PHOTOS_REGION"`
	UseSSL    bool   `yaml:"use_ssl" envconfig:"PHOTOS_USE_SSL"`
}

// Validate checks the required connection fields.
func (c MinioConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		missing = append(missing, "access_key")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		missing = append(missing, "secret_key")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("photos: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// MinioStore keeps photos in an S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioStore connects to the endpoint described by cfg.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("photos: minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("photos: bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("photos: make bucket %s: %w", s.bucket, err)
	}
	logger.Info(ctx, "photos", "photos.bucket_created", slog.String("bucket", s.bucket))
	return nil
}

// Put uploads r as a JPEG object and returns its key.
func (s *MinioStore) Put(ctx context.Context, userID int64, r io.Reader) (string, error) {
	key := objectKey(userID, s.now(), uuid.New())
	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("photos: put %s: %w", key, err)
	}
	logger.Debug(ctx, "photos", "photos.put",
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)
	return key, nil
}

// Get opens the object stored under ref.
func (s *MinioStore) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("photos: get %s: %w", ref, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("photos: stat %s: %w", ref, err)
	}
	return obj, nil
}

// Delete removes the object stored under ref.
func (s *MinioStore) Delete(ctx context.Context, ref string) error {
	if err := validRef(ref); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("photos: delete %s: %w", ref, err)
	}
	logger.Debug(ctx, "photos", "photos.delete", slog.String("key", ref))
	return nil
}

// GetAll opens every object of userID in upload order.
func (s *MinioStore) GetAll(ctx context.Context, userID int64) ([]io.ReadCloser, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []io.ReadCloser
	for info := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    userPrefix(userID),
		Recursive: true,
	}) {
		if info.Err != nil {
			closeAll(out)
			return nil, fmt.Errorf("photos: list: %w", info.Err)
		}
		rc, err := s.Get(ctx, info.Key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			closeAll(out)
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
