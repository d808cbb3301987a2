package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// LinkExpiry bounds how long a presigned link stays valid.
	LinkExpiry time.Duration
}

// ObjectArchive stores oversized payloads in an S3 compatible bucket and
// hands out presigned download links.
type ObjectArchive struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewObjectArchive(ctx context.Context, cfg ObjectArchiveConfig) (*ObjectArchive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object archive requires endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	expiry := cfg.LinkExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &ObjectArchive{client: client, bucket: cfg.Bucket, expiry: expiry}, nil
}

func (a *ObjectArchive) Publish(ctx context.Context, name string, data []byte) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        "text/plain; charset=utf-8",
		ContentDisposition: `attachment; filename="` + TracebackFilename + `"`,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	link, err := a.client.PresignedGetObject(ctx, a.bucket, name, a.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", name, err)
	}
	return link.String(), nil
}
