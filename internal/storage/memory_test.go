package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facesort/internal/models"
)

func TestMemoryStore_CreateAndGetPhoto(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.CreatePhoto(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.StateUnprocessed, p.State)
	assert.Empty(t, p.People)

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", got.Filename)

	_, err = s.GetPhoto(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListUnprocessedIncludesUnsetState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.PutPhoto(models.Photo{ID: "legacy", Filename: "old.jpg"})
	fresh, err := s.CreatePhoto(ctx, "new.jpg")
	require.NoError(t, err)
	done, err := s.CreatePhoto(ctx, "done.jpg")
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed(ctx, done.ID, nil))

	photos, err := s.ListUnprocessedPhotos(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "legacy", photos[0].ID)
	assert.Equal(t, fresh.ID, photos[1].ID)
}

func TestMemoryStore_TerminalStateIsFinal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.CreatePhoto(ctx, "a.jpg")
	require.NoError(t, err)

	people := []models.FaceAnnotation{{PersonID: "p1", Box: models.BoundingBox{X: 1, Y: 2, W: 3, H: 4}}}
	require.NoError(t, s.MarkProcessed(ctx, p.ID, people))

	assert.ErrorIs(t, s.MarkFailed(ctx, p.ID, "boom"), ErrPhotoFinalized)
	assert.ErrorIs(t, s.MarkProcessed(ctx, p.ID, nil), ErrPhotoFinalized)

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateProcessed, got.State)
	assert.Equal(t, people, got.People)
	assert.Empty(t, got.ProcessingError)

	assert.ErrorIs(t, s.MarkFailed(ctx, "missing", "x"), ErrNotFound)
}

func TestMemoryStore_MarkFailedRecordsMessage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.CreatePhoto(ctx, "a.jpg")
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, p.ID, "decode failed"))

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateProcessedWithError, got.State)
	assert.Equal(t, "decode failed", got.ProcessingError)
}

func TestMemoryStore_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.CreatePhoto(ctx, "a.jpg")
	require.NoError(t, err)
	require.NoError(t, s.AddAnnotation(ctx, p.ID, models.FaceAnnotation{PersonID: "p1"}))

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	got.People[0].PersonID = "mutated"

	again, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", again.People[0].PersonID)
}

func TestMemoryStore_ListPhotosPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 5; i++ {
		_, err := s.CreatePhoto(ctx, "p.jpg")
		require.NoError(t, err)
	}

	page, total, err := s.ListPhotos(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	page, total, err = s.ListPhotos(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, page)
}

func TestMemoryStore_ListPhotosByPerson(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _ := s.CreatePhoto(ctx, "a.jpg")
	_, _ = s.CreatePhoto(ctx, "b.jpg")
	require.NoError(t, s.AddAnnotation(ctx, a.ID, models.FaceAnnotation{PersonID: "alice"}))

	photos, total, err := s.ListPhotosByPerson(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, photos, 1)
	assert.Equal(t, a.ID, photos[0].ID)
}

func TestMemoryStore_ReassignAnnotation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, _ := s.CreatePhoto(ctx, "a.jpg")
	ann := models.FaceAnnotation{PersonID: "alice", Box: models.BoundingBox{X: 5, Y: 5, W: 10, H: 10}}
	require.NoError(t, s.AddAnnotation(ctx, p.ID, ann))

	require.NoError(t, s.ReassignAnnotation(ctx, p.ID, ann, "bob"))
	got, _ := s.GetPhoto(ctx, p.ID)
	assert.Equal(t, "bob", got.People[0].PersonID)
	assert.Equal(t, ann.Box, got.People[0].Box)

	assert.ErrorIs(t, s.ReassignAnnotation(ctx, p.ID, ann, "carol"), ErrNotFound)
}

func TestMemoryStore_AdjustPhotoCountFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.CreatePerson(ctx, "person_1", "faces/1.jpg", 1)
	require.NoError(t, err)

	require.NoError(t, s.AdjustPhotoCount(ctx, p.ID, 1))
	got, _ := s.GetPerson(ctx, p.ID)
	assert.Equal(t, 2, got.PhotoCount)

	require.NoError(t, s.AdjustPhotoCount(ctx, p.ID, -5))
	got, _ = s.GetPerson(ctx, p.ID)
	assert.Equal(t, 0, got.PhotoCount)

	assert.ErrorIs(t, s.AdjustPhotoCount(ctx, "missing", 1), ErrNotFound)
}

func TestMemoryStore_ListPersonsCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _ := s.CreatePerson(ctx, "a", "faces/a.jpg", 1)
	b, _ := s.CreatePerson(ctx, "b", "faces/b.jpg", 1)
	c, _ := s.CreatePerson(ctx, "c", "faces/c.jpg", 0)

	persons, err := s.ListPersons(ctx)
	require.NoError(t, err)
	require.Len(t, persons, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{persons[0].ID, persons[1].ID, persons[2].ID})

	page, total, err := s.ListPersonsPage(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)
}

func TestMemoryStore_UpdatePerson(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, _ := s.CreatePerson(ctx, "person_1", "faces/1.jpg", 1)
	name := "Alice"
	require.NoError(t, s.UpdatePerson(ctx, p.ID, models.PersonUpdate{Name: &name}))

	got, _ := s.GetPerson(ctx, p.ID)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "faces/1.jpg", got.FaceFile)
}

func TestMemoryBlobs(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlobs()

	_, err := b.Get(ctx, "photos/x.jpg")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, b.Put(ctx, "photos/x.jpg", []byte("abc"), "image/jpeg"))
	ok, err := b.Exists(ctx, "photos/x.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := b.Get(ctx, "photos/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	require.NoError(t, b.Delete(ctx, "photos/x.jpg"))
	ok, _ = b.Exists(ctx, "photos/x.jpg")
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "photos/a.jpg", PhotoKey("a.jpg"))
	assert.Equal(t, "faces/b.jpg", FaceKey("b.jpg"))
}
