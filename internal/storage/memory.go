package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/models"
)

// MemoryStore is an in-process DocumentStore. Records are copied in and out
// so callers never share slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	photos  map[string]*models.Photo
	persons map[string]*models.Person
	// insertion order, used for stable listings
	photoOrder  []string
	personOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		photos:  make(map[string]*models.Photo),
		persons: make(map[string]*models.Person),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

// --- Photos ---

func (s *MemoryStore) CreatePhoto(ctx context.Context, filename string) (*models.Photo, error) {
	now := time.Now()
	p := &models.Photo{
		ID:        uuid.NewString(),
		Filename:  filename,
		People:    []models.FaceAnnotation{},
		State:     models.StateUnprocessed,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.photos[p.ID] = p
	s.photoOrder = append(s.photoOrder, p.ID)
	s.mu.Unlock()

	return copyPhoto(p), nil
}

// PutPhoto inserts or replaces a photo record verbatim. An empty State is kept
// as-is so callers can model records that never had the flag set.
func (s *MemoryStore) PutPhoto(p models.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[p.ID]; !ok {
		s.photoOrder = append(s.photoOrder, p.ID)
	}
	s.photos[p.ID] = copyPhoto(&p)
}

func (s *MemoryStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPhoto(p), nil
}

func (s *MemoryStore) ListPhotos(ctx context.Context, offset, limit int) ([]models.Photo, int, error) {
	return s.listPhotos(offset, limit, func(*models.Photo) bool { return true })
}

func (s *MemoryStore) ListPhotosByPerson(ctx context.Context, personID string, offset, limit int) ([]models.Photo, int, error) {
	return s.listPhotos(offset, limit, func(p *models.Photo) bool { return hasPerson(p.People, personID) })
}

func (s *MemoryStore) listPhotos(offset, limit int, keep func(*models.Photo) bool) ([]models.Photo, int, error) {
	offset, limit = clampPage(offset, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Photo
	for _, id := range s.photoOrder {
		if p := s.photos[id]; keep(p) {
			matched = append(matched, p)
		}
	}

	total := len(matched)
	out := make([]models.Photo, 0, limit)
	for i := offset; i < total && len(out) < limit; i++ {
		out = append(out, *copyPhoto(matched[i]))
	}
	return out, total, nil
}

func (s *MemoryStore) ListUnprocessedPhotos(ctx context.Context) ([]models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Photo
	for _, id := range s.photoOrder {
		p := s.photos[id]
		if !p.State.Terminal() {
			out = append(out, *copyPhoto(p))
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id string, people []models.FaceAnnotation) error {
	return s.finish(id, func(p *models.Photo) {
		p.State = models.StateProcessed
		p.People = append([]models.FaceAnnotation{}, people...)
		p.ProcessingError = ""
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, message string) error {
	return s.finish(id, func(p *models.Photo) {
		p.State = models.StateProcessedWithError
		p.ProcessingError = message
	})
}

func (s *MemoryStore) finish(id string, apply func(*models.Photo)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[id]
	if !ok {
		return ErrNotFound
	}
	if p.State.Terminal() {
		return ErrPhotoFinalized
	}
	apply(p)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AddAnnotation(ctx context.Context, photoID string, ann models.FaceAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[photoID]
	if !ok {
		return ErrNotFound
	}
	p.People = append(p.People, ann)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReassignAnnotation(ctx context.Context, photoID string, old models.FaceAnnotation, newPersonID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photos[photoID]
	if !ok {
		return ErrNotFound
	}
	for i := range p.People {
		if p.People[i] == old {
			p.People[i].PersonID = newPersonID
			p.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

// --- Persons ---

func (s *MemoryStore) CreatePerson(ctx context.Context, name, faceFile string, photoCount int) (*models.Person, error) {
	now := time.Now()
	p := &models.Person{
		ID:         uuid.NewString(),
		Name:       name,
		FaceFile:   faceFile,
		PhotoCount: photoCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.persons[p.ID] = p
	s.personOrder = append(s.personOrder, p.ID)
	s.mu.Unlock()

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Person, 0, len(s.personOrder))
	for _, id := range s.personOrder {
		out = append(out, *s.persons[id])
	}
	return out, nil
}

func (s *MemoryStore) ListPersonsPage(ctx context.Context, offset, limit int) ([]models.Person, int, error) {
	offset, limit = clampPage(offset, limit)
	all, _ := s.ListPersons(ctx)
	total := len(all)
	if offset >= total {
		return []models.Person{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) AdjustPhotoCount(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.persons[id]
	if !ok {
		return ErrNotFound
	}
	p.PhotoCount += delta
	if p.PhotoCount < 0 {
		p.PhotoCount = 0
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdatePerson(ctx context.Context, id string, upd models.PersonUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.persons[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.FaceFile != nil {
		p.FaceFile = *upd.FaceFile
	}
	p.UpdatedAt = time.Now()
	return nil
}

func copyPhoto(p *models.Photo) *models.Photo {
	cp := *p
	cp.People = append([]models.FaceAnnotation{}, p.People...)
	cp.Tags = append([]string{}, p.Tags...)
	return &cp
}

// MemoryBlobs is an in-process BlobStore.
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

func (b *MemoryBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrBlobNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBlobs) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[key]
	return ok, nil
}

func (b *MemoryBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

func (b *MemoryBlobs) Ping(ctx context.Context) error { return nil }

// Keys returns the stored keys; used by tests to inspect written crops.
func (b *MemoryBlobs) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.blobs))
	for k := range b.blobs {
		keys = append(keys, k)
	}
	return keys
}
