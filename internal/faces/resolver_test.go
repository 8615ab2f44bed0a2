package faces

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

func testPicture(t *testing.T) image.Image {
	t.Helper()
	img, err := vision.DecodeImage(pngBytes(t, 100, 100, 1))
	require.NoError(t, err)
	return img
}

func TestResolve_MatchIncrementsCounterOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.addPerson(t, "alice", 3, []float32{0, 0})
	other := f.addPerson(t, "bob", 2, []float32{5, 5})
	keysBefore := len(f.blobs.Keys())

	g := NewGallery(Entry{p.ID, []float32{0, 0}}, Entry{other.ID, []float32{5, 5}})
	r := NewResolver(f.store, f.blobs, Matcher{Threshold: DefaultThreshold}, f.events, false)

	res, err := r.Resolve(ctx, "photo-1", testPicture(t), face(10, 10, 20, 20, 0.3, 0), g)
	require.NoError(t, err)

	assert.Equal(t, p.ID, res.PersonID)
	assert.False(t, res.Created)
	assert.Equal(t, 4, f.person(t, p.ID).PhotoCount)
	assert.Equal(t, 2, f.person(t, other.ID).PhotoCount)
	assert.Len(t, f.blobs.Keys(), keysBefore, "no crop written for a matched face")
	assert.Empty(t, f.events.created)
}

func TestResolve_NoMatchMintsPerson(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.addPerson(t, "alice", 1, []float32{0, 0})

	g := NewGallery(Entry{p.ID, []float32{0, 0}})
	r := NewResolver(f.store, f.blobs, Matcher{Threshold: DefaultThreshold}, f.events, false)

	res, err := r.Resolve(ctx, "photo-1", testPicture(t), face(10, 10, 30, 40, 0.9, 0), g)
	require.NoError(t, err)
	require.True(t, res.Created)

	q := f.person(t, res.PersonID)
	assert.Equal(t, 1, q.PhotoCount)
	assert.True(t, strings.HasPrefix(q.Name, "person_"))
	assert.Len(t, q.Name, len("person_")+8)
	assert.True(t, strings.HasPrefix(q.FaceFile, "faces/"))
	assert.True(t, strings.HasSuffix(q.FaceFile, ".jpg"))

	crop, err := f.blobs.Get(ctx, q.FaceFile)
	require.NoError(t, err)
	decoded, err := vision.DecodeImage(crop)
	require.NoError(t, err)
	assert.Equal(t, 30, decoded.Bounds().Dx())
	assert.Equal(t, 40, decoded.Bounds().Dy())

	assert.Equal(t, 1, f.person(t, p.ID).PhotoCount)
	assert.Equal(t, 1, g.Len(), "gallery is not grown by default")

	require.Len(t, f.events.created, 1)
	assert.Equal(t, q.ID, f.events.created[0].PersonID)
	assert.Equal(t, "photo-1", f.events.created[0].PhotoID)
}

func TestResolve_GrowGallery(t *testing.T) {
	f := newFixture()
	g := NewGallery()
	r := NewResolver(f.store, f.blobs, Matcher{Threshold: DefaultThreshold}, nil, true)

	res, err := r.Resolve(context.Background(), "photo-1", testPicture(t), face(0, 0, 10, 10, 1, 1), g)
	require.NoError(t, err)

	require.Equal(t, 1, g.Len())
	assert.Equal(t, res.PersonID, g.Entries()[0].PersonID)
}

func TestResolve_ZeroCounterPersonStillMatches(t *testing.T) {
	f := newFixture()
	p := f.addPerson(t, "orphan", 0, []float32{0, 0})
	g := NewGallery(Entry{p.ID, []float32{0, 0}})
	r := NewResolver(f.store, f.blobs, Matcher{Threshold: DefaultThreshold}, nil, false)

	res, err := r.Resolve(context.Background(), "photo-1", testPicture(t), face(0, 0, 10, 10, 0.1, 0), g)
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.PersonID)
	assert.Equal(t, 1, f.person(t, p.ID).PhotoCount)
}

type failingCreate struct {
	storage.PersonStore
}

func (failingCreate) CreatePerson(context.Context, string, string, int) (*models.Person, error) {
	return nil, errors.New("insert failed")
}

func TestResolve_CreateFailureRemovesCrop(t *testing.T) {
	f := newFixture()
	r := NewResolver(failingCreate{f.store}, f.blobs, Matcher{Threshold: DefaultThreshold}, nil, false)

	_, err := r.Resolve(context.Background(), "photo-1", testPicture(t), face(0, 0, 10, 10, 1), NewGallery())
	assert.ErrorContains(t, err, "insert failed")
	assert.Empty(t, f.blobs.Keys())
}
