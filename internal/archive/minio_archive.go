package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"apodetl/internal/clients"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the subset of the minio client the archiver needs.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archiver writes raw APOD payloads to an S3-compatible bucket.
type Archiver struct {
	store  ObjectStore
	bucket string
}

func New(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

// NewMinio dials the configured endpoint.
func NewMinio(cfg Config) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return New(client, cfg.Bucket), nil
}

// ObjectName is the key a day's payload is stored under.
func ObjectName(date string) string {
	if date == "" {
		date = "undated"
	}
	return "apod/" + date + ".json"
}

// Put stores the payload, creating the bucket on first use, and returns
// the object name.
func (a *Archiver) Put(ctx context.Context, payload clients.APODPayload) (string, error) {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket %s: %w", a.bucket, err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	date, _ := payload["date"].(string)
	name := ObjectName(date)
	_, err = a.store.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", a.bucket, name, err)
	}
	return name, nil
}
