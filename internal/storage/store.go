package storage

import (
	"context"
	"errors"
	"path"

	"github.com/your-org/facesort/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is returned when an identifier is not in the backend's format.
	ErrInvalidID = errors.New("invalid id")
	// ErrPhotoFinalized is returned when a terminal transition targets a photo
	// that already left the unprocessed state.
	ErrPhotoFinalized = errors.New("photo already processed")
	ErrBlobNotFound   = errors.New("blob not found")
)

// PhotoStore is the photos collection of the document store.
type PhotoStore interface {
	CreatePhoto(ctx context.Context, filename string) (*models.Photo, error)
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	ListPhotos(ctx context.Context, offset, limit int) ([]models.Photo, int, error)
	ListPhotosByPerson(ctx context.Context, personID string, offset, limit int) ([]models.Photo, int, error)
	// ListUnprocessedPhotos returns photos whose state is unprocessed or unset, oldest first.
	ListUnprocessedPhotos(ctx context.Context) ([]models.Photo, error)
	// MarkProcessed writes the annotations and the processed state in one
	// update, only if the photo is still unprocessed.
	MarkProcessed(ctx context.Context, id string, people []models.FaceAnnotation) error
	// MarkFailed records the error and the processed-with-error state, only if
	// the photo is still unprocessed.
	MarkFailed(ctx context.Context, id string, message string) error
	AddAnnotation(ctx context.Context, photoID string, ann models.FaceAnnotation) error
	// ReassignAnnotation re-points the annotation equal to old to newPersonID.
	ReassignAnnotation(ctx context.Context, photoID string, old models.FaceAnnotation, newPersonID string) error
}

// PersonStore is the persons collection of the document store.
type PersonStore interface {
	CreatePerson(ctx context.Context, name, faceFile string, photoCount int) (*models.Person, error)
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	// ListPersons returns all persons in creation order.
	ListPersons(ctx context.Context) ([]models.Person, error)
	ListPersonsPage(ctx context.Context, offset, limit int) ([]models.Person, int, error)
	// AdjustPhotoCount adds delta to the person's counter, flooring at zero.
	AdjustPhotoCount(ctx context.Context, id string, delta int) error
	UpdatePerson(ctx context.Context, id string, upd models.PersonUpdate) error
}

// DocumentStore is the full persistent record store.
type DocumentStore interface {
	PhotoStore
	PersonStore
	Ping(ctx context.Context) error
	Close()
}

// BlobStore holds image bytes at path-like keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrBlobNotFound when no object exists at key.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

const (
	photosPrefix = "photos"
	facesPrefix  = "faces"
)

// PhotoKey returns the blob key of an uploaded photo's bytes.
func PhotoKey(filename string) string {
	return path.Join(photosPrefix, filename)
}

// FaceKey returns the blob key of a generated face crop.
func FaceKey(name string) string {
	return path.Join(facesPrefix, name)
}

func clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 500 {
		limit = 500
	}
	return offset, limit
}

func hasPerson(people []models.FaceAnnotation, personID string) bool {
	for _, p := range people {
		if p.PersonID == personID {
			return true
		}
	}
	return false
}
