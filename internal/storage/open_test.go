package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facesort/internal/config"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestOpenBlobs(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: config.BackendLocal, LocalDir: t.TempDir()}}
	b, err := OpenBlobs(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalBlobs{}, b)

	cfg.Storage.Backend = "ftp"
	_, err = OpenBlobs(context.Background(), cfg)
	assert.Error(t, err)
}
