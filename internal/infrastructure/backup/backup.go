// Package backup хранит снимки сущностей во внешнем объектном хранилище.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/config"
)

// MinIO пишет объекты в S3-совместимое хранилище. Бакет создается
// при первой записи.
type MinIO struct {
	client *minio.Client
	bucket string
	log    *slog.Logger

	mu       sync.Mutex
	bucketOK bool
}

func NewMinIO(cfg config.BackupConfig, log *slog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "fieldsync-backup"
	}

	return &MinIO{
		client: client,
		bucket: bucket,
		log:    log.With("component", "backup"),
	}, nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bucketOK {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket: %w", err)
		}
		m.log.Info("backup bucket created", "bucket", m.bucket)
	}
	m.bucketOK = true
	return nil
}

func (m *MinIO) Put(ctx context.Context, key string, data []byte) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	m.log.Debug("backup stored", "key", key, "size", len(data))
	return nil
}

// Noop используется, когда хранилище не настроено.
type Noop struct{}

func (Noop) Put(context.Context, string, []byte) error {
	return nil
}
