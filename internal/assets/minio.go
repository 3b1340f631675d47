// Package assets stores uploaded board images in an S3-compatible bucket
// and hands back the object key as the image's asset reference.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

var (
	ErrEmpty           = errors.New("empty upload")
	ErrTooLarge        = errors.New("upload too large")
	ErrUnsupportedType = errors.New("unsupported image type")
)

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
}

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Stored describes an object written to the bucket.
type Stored struct {
	AssetRef    string `json:"assetRef"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Uploader interface {
	Upload(ctx context.Context, upload Upload) (Stored, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	MaxBytes  int64
}

// MinioStore writes objects through the MinIO client.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	prefix   string
	maxBytes int64
	now      func() time.Time
}

// NewMinioStore connects to the bucket endpoint and creates the bucket if
// it does not exist yet.
func NewMinioStore(ctx context.Context, cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.WithField("bucket", cfg.Bucket).Info("assets: created bucket")
	}

	log.WithFields(log.Fields{
		"bucket":   cfg.Bucket,
		"endpoint": cfg.Endpoint,
	}).Info("assets: storage client initialized")

	return &MinioStore{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		maxBytes: cfg.MaxBytes,
		now:      time.Now,
	}, nil
}

func (s *MinioStore) Upload(ctx context.Context, upload Upload) (Stored, error) {
	contentType, err := Validate(upload, s.maxBytes)
	if err != nil {
		return Stored{}, err
	}
	key := ObjectKey(s.prefix, upload.Filename, s.now())

	info, err := s.client.PutObject(ctx, s.bucket, key, upload.Body, upload.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Stored{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Stored{AssetRef: key, ContentType: contentType, Size: info.Size}, nil
}

// Validate checks an upload against the size limit and the image types we
// accept, returning the content type to store it under. A client-sent
// content type is trusted only when it is an image type; otherwise the
// file extension decides.
func Validate(upload Upload, maxBytes int64) (string, error) {
	if upload.Size <= 0 || upload.Body == nil {
		return "", ErrEmpty
	}
	if maxBytes > 0 && upload.Size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, upload.Size, maxBytes)
	}
	byExt, ok := allowedExtensions[strings.ToLower(path.Ext(upload.Filename))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, upload.Filename)
	}
	contentType := strings.TrimSpace(upload.ContentType)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = byExt
	}
	return contentType, nil
}

// ObjectKey builds a unique, date-partitioned object key.
func ObjectKey(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%04d/%02d/%02d/%s%s", prefix, now.Year(), now.Month(), now.Day(), id, ext)
}
