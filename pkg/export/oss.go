package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const presignExpiry = 72 * time.Hour

// Uploader pushes finished exports to an S3-compatible bucket.
type Uploader struct {
	client *minio.Client
	bucket string
}

func NewUploader(cfg config.MinIOConfig) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	log.Infof("MinIO uploader ready for bucket %s at %s.", cfg.Bucket, cfg.Endpoint)
	return &Uploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores the zip under objectName and returns a presigned download URL.
func (u *Uploader) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket: %w", err)
		}
		log.Infof("Bucket '%s' created.", u.bucket)
	}

	_, err = u.client.PutObject(ctx, u.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, objectName, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign export: %w", err)
	}
	log.Infof("Export uploaded: %s", objectName)
	return presigned.String(), nil
}
