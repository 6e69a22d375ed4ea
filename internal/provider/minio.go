package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// MinioConfig configures the MinIO backend.
type MinioConfig struct {
	Endpoint  string // "minio:9000" or "https://minio.example.com"
	AccessKey string
	SecretKey string
	Bucket    string

	// PublicBaseURL is the externally reachable prefix for objects. When empty
	// the endpoint itself is used: <scheme>://<endpoint>/<bucket>.
	PublicBaseURL string
}

// Minio stores uploads in a MinIO (or any S3-compatible) bucket.
type Minio struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinio builds the client and verifies that the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	m := newMinioWithClient(client, cfg.Bucket, cfg.PublicBaseURL, endpoint, secure)

	// Sanity check: bucket must exist.
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func newMinioWithClient(client *minio.Client, bucket, publicBase, endpoint string, secure bool) *Minio {
	base := publicBase
	if base == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, endpoint)
	}
	return &Minio{
		client:  client,
		bucket:  bucket,
		baseURL: joinURL(base, bucket),
	}
}

func (m *Minio) Name() string { return "minio" }

func (m *Minio) Upload(ctx context.Context, file string, opts UploadOptions) (*Result, error) {
	return objectUpload(ctx, file, opts, m.baseURL, func(ctx context.Context, key, contentType string, data []byte) error {
		_, err := m.client.PutObject(
			ctx,
			m.bucket,
			key,
			bytes.NewReader(data),
			int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType},
		)
		return errors.Wrapf(err, "minio put %s", key)
	})
}

func (m *Minio) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return errors.Wrap(err, "minio bucket check")
	}
	if !exists {
		return errors.Errorf("minio bucket does not exist: %s", m.bucket)
	}
	return nil
}
