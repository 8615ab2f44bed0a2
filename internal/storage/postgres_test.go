//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/facesort/internal/models"
)

func setupPostgres(t *testing.T) *PostgresStore {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreFromDSN(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestPostgresStore(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	t.Run("photo lifecycle", func(t *testing.T) {
		p, err := s.CreatePhoto(ctx, "a.jpg")
		require.NoError(t, err)

		unprocessed, err := s.ListUnprocessedPhotos(ctx)
		require.NoError(t, err)
		require.Len(t, unprocessed, 1)
		assert.Equal(t, p.ID, unprocessed[0].ID)

		people := []models.FaceAnnotation{{PersonID: "x", Box: models.BoundingBox{X: 1, Y: 1, W: 5, H: 5}}}
		require.NoError(t, s.MarkProcessed(ctx, p.ID, people))
		assert.ErrorIs(t, s.MarkFailed(ctx, p.ID, "late"), ErrPhotoFinalized)

		got, err := s.GetPhoto(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateProcessed, got.State)
		assert.Equal(t, people, got.People)

		unprocessed, err = s.ListUnprocessedPhotos(ctx)
		require.NoError(t, err)
		assert.Empty(t, unprocessed)
	})

	t.Run("null state counts as unprocessed", func(t *testing.T) {
		p, err := s.CreatePhoto(ctx, "legacy.jpg")
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `UPDATE photos SET state = NULL WHERE id = $1`, p.ID)
		require.NoError(t, err)

		unprocessed, err := s.ListUnprocessedPhotos(ctx)
		require.NoError(t, err)
		require.Len(t, unprocessed, 1)
		assert.Equal(t, models.StateUnprocessed, unprocessed[0].State)

		require.NoError(t, s.MarkFailed(ctx, p.ID, "bad image"))
	})

	t.Run("photos by person", func(t *testing.T) {
		person, err := s.CreatePerson(ctx, "person_a", "faces/a.jpg", 1)
		require.NoError(t, err)
		p, err := s.CreatePhoto(ctx, "b.jpg")
		require.NoError(t, err)
		require.NoError(t, s.AddAnnotation(ctx, p.ID, models.FaceAnnotation{PersonID: person.ID}))

		photos, total, err := s.ListPhotosByPerson(ctx, person.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, photos, 1)
		assert.Equal(t, p.ID, photos[0].ID)
	})

	t.Run("counter floors at zero", func(t *testing.T) {
		person, err := s.CreatePerson(ctx, "person_b", "faces/b.jpg", 1)
		require.NoError(t, err)
		require.NoError(t, s.AdjustPhotoCount(ctx, person.ID, -3))

		got, err := s.GetPerson(ctx, person.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.PhotoCount)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := s.GetPerson(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}
