package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/config"
)

func TestNewMinIO(t *testing.T) {
	m, err := NewMinIO(config.BackupConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "fieldsync-backup", m.bucket)

	m, err = NewMinIO(config.BackupConfig{Endpoint: "s3.local:9000", Bucket: "inspections"}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "inspections", m.bucket)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Put(context.Background(), "k", []byte("v")))
}
