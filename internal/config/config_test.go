package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, BackendMinIO, cfg.Storage.Backend)
	assert.Equal(t, ProviderDlib, cfg.Vision.Provider)
	assert.Equal(t, 0.6, cfg.Matching.Threshold)
	assert.Equal(t, time.Duration(0), cfg.Batch.Interval)
	assert.False(t, cfg.Batch.GrowGallery)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParse_YAMLValues(t *testing.T) {
	data := []byte(`
server:
  port: 9000
database:
  driver: mongo
  uri: mongodb://localhost:27017
storage:
  backend: local
  local_dir: /tmp/faces
vision:
  provider: onnx
matching:
  threshold: 0.45
batch:
  interval: 30s
  grow_gallery: true
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.URI)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/faces", cfg.Storage.LocalDir)
	assert.Equal(t, ProviderONNX, cfg.Vision.Provider)
	assert.Equal(t, 0.45, cfg.Matching.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Batch.Interval)
	assert.True(t, cfg.Batch.GrowGallery)
}

func TestParse_ThresholdDefaultFollowsProvider(t *testing.T) {
	cfg, err := Parse([]byte("vision:\n  provider: onnx\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultONNXThreshold, cfg.Matching.Threshold)

	cfg, err = Parse([]byte("vision:\n  provider: dlib\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDlibThreshold, cfg.Matching.Threshold)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("FACES_SERVER_PORT", "7070")
	t.Setenv("FACES_MATCH_THRESHOLD", "0.5")
	t.Setenv("FACES_DB_DRIVER", "memory")
	t.Setenv("FACES_BATCH_INTERVAL", "1m")

	cfg, err := Parse([]byte("server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Matching.Threshold)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, time.Minute, cfg.Batch.Interval)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "database:\n  driver: sqlite\n"},
		{"unknown backend", "storage:\n  backend: s3\n"},
		{"unknown provider", "vision:\n  provider: gpu\n"},
		{"negative threshold", "matching:\n  threshold: -1\n"},
		{"negative interval", "batch:\n  interval: -5s\n"},
		{"bad yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "faces", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/faces?sslmode=disable", d.DSN())
}
