package faces

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

// mockProvider is a vision.Provider driven by testify expectations keyed on
// the exact image bytes.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Detect(imageData []byte) ([]vision.Face, error) {
	args := m.Called(imageData)
	faces, _ := args.Get(0).([]vision.Face)
	return faces, args.Error(1)
}

func (m *mockProvider) Encode(imageData []byte) ([][]float32, error) {
	args := m.Called(imageData)
	embs, _ := args.Get(0).([][]float32)
	return embs, args.Error(1)
}

func (m *mockProvider) Close() {}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu        sync.Mutex
	processed []models.PhotoProcessedEvent
	created   []models.PersonCreatedEvent
}

func (r *recordingPublisher) PublishPhotoProcessed(_ context.Context, ev models.PhotoProcessedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, ev)
	return nil
}

func (r *recordingPublisher) PublishPersonCreated(_ context.Context, ev models.PersonCreatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, ev)
	return nil
}

// pngBytes returns a decodable w x h image whose bytes differ per seed.
func pngBytes(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: seed, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	store    *storage.MemoryStore
	blobs    *storage.MemoryBlobs
	provider *mockProvider
	events   *recordingPublisher
}

func newFixture() *fixture {
	return &fixture{
		store:    storage.NewMemoryStore(),
		blobs:    storage.NewMemoryBlobs(),
		provider: &mockProvider{},
		events:   &recordingPublisher{},
	}
}

func (f *fixture) processor(grow bool) *Processor {
	return NewProcessor(f.store, f.blobs, f.provider, Options{
		Threshold:   DefaultThreshold,
		GrowGallery: grow,
		Events:      f.events,
	})
}

// addPerson stores a person whose reference crop encodes to emb.
func (f *fixture) addPerson(t *testing.T, name string, count int, emb []float32) *models.Person {
	t.Helper()
	ctx := context.Background()
	key := storage.FaceKey(name + ".jpg")
	crop := []byte("crop:" + name)
	require.NoError(t, f.blobs.Put(ctx, key, crop, "image/jpeg"))
	p, err := f.store.CreatePerson(ctx, name, key, count)
	require.NoError(t, err)
	f.provider.On("Encode", crop).Return([][]float32{emb}, nil)
	return p
}

// addPhoto uploads a 100x100 photo whose detector output is faces.
func (f *fixture) addPhoto(t *testing.T, name string, seed uint8, faces []vision.Face) *models.Photo {
	t.Helper()
	ctx := context.Background()
	data := pngBytes(t, 100, 100, seed)
	require.NoError(t, f.blobs.Put(ctx, storage.PhotoKey(name), data, "image/png"))
	p, err := f.store.CreatePhoto(ctx, name)
	require.NoError(t, err)
	f.provider.On("Detect", data).Return(faces, nil)
	return p
}

func (f *fixture) person(t *testing.T, id string) *models.Person {
	t.Helper()
	p, err := f.store.GetPerson(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) photo(t *testing.T, id string) *models.Photo {
	t.Helper()
	p, err := f.store.GetPhoto(context.Background(), id)
	require.NoError(t, err)
	return p
}

func face(x, y, w, h int, emb ...float32) vision.Face {
	return vision.Face{Box: image.Rect(x, y, x+w, y+h), Embedding: emb}
}
