package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cellarhub/server/internal/config"
)

type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	bucket := s.cfg.BucketPreviews
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// PreviewKey is the object key of the rendered preview card for a share token.
func PreviewKey(token string) string {
	return "previews/" + token + ".png"
}

func (s *ObjectStore) PutPreview(ctx context.Context, token string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.cfg.BucketPreviews, PreviewKey(token),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  "image/png",
			CacheControl: "public, max-age=86400",
		})
	if err != nil {
		return fmt.Errorf("put preview: %w", err)
	}
	return nil
}

// PreviewURL returns a presigned GET url for the preview of token. The
// boolean is false when the preview has not been rendered yet.
func (s *ObjectStore) PreviewURL(ctx context.Context, token string) (string, bool, error) {
	key := PreviewKey(token)
	if _, err := s.client.StatObject(ctx, s.cfg.BucketPreviews, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat preview: %w", err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.cfg.BucketPreviews, key, s.cfg.PresignTTL, nil)
	if err != nil {
		return "", false, fmt.Errorf("presign preview: %w", err)
	}
	return u.String(), true, nil
}

func (s *ObjectStore) Client() *minio.Client {
	return s.client
}
