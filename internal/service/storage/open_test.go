package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidera/internal/config"
	"fidera/internal/domain"
)

func localConfig(t *testing.T) config.StorageConfig {
	return config.StorageConfig{
		StagingBucket: "staging",
		SecureBucket:  "secure",
		LocalDir:      filepath.Join(t.TempDir(), "storage"),
	}
}

func TestOpen_LocalWithoutObjectStore(t *testing.T) {
	cfg := localConfig(t)

	m, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", m.BackendName())

	for _, bucket := range []string{"staging", "secure"} {
		info, err := os.Stat(filepath.Join(cfg.LocalDir, bucket))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	locator, err := m.Put(context.Background(), domain.BucketStaging, "uploads/a", bytes.NewReader([]byte("x")), 1, "text/plain")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.LocalDir, "staging", "uploads", "a"))
	assert.Equal(t, "staging/uploads/a", locator)
}

func TestOpen_FallsBackWhenObjectStoreUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("probes a closed port")
	}
	cfg := localConfig(t)
	cfg.Endpoint = "http://127.0.0.1:1"
	cfg.Region = "us-east-1"
	cfg.AccessKey = "key"
	cfg.SecretKey = "secret"
	cfg.UsePathStyle = true

	m, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", m.BackendName())
}
