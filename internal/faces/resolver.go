package faces

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

// Resolver attaches one detected face to an existing person or mints a new one.
type Resolver struct {
	persons storage.PersonStore
	blobs   storage.BlobStore
	matcher Matcher
	events  EventPublisher
	// grow appends minted persons to the in-run gallery.
	grow bool
}

func NewResolver(persons storage.PersonStore, blobs storage.BlobStore, matcher Matcher, events EventPublisher, grow bool) *Resolver {
	if events == nil {
		events = nopPublisher{}
	}
	return &Resolver{persons: persons, blobs: blobs, matcher: matcher, events: events, grow: grow}
}

// Resolution is the person a face was attached to.
type Resolution struct {
	PersonID string
	Created  bool
	Distance float64
}

// Resolve performs at most one person write and at most one crop write.
// face.Box must already lie within img's bounds.
func (r *Resolver) Resolve(ctx context.Context, photoID string, img image.Image, face vision.Face, g *Gallery) (Resolution, error) {
	if m, ok := r.matcher.FindMatch(face.Embedding, g); ok {
		if err := r.persons.AdjustPhotoCount(ctx, m.PersonID, 1); err != nil {
			return Resolution{}, fmt.Errorf("increment person %s: %w", m.PersonID, err)
		}
		observability.FacesResolved.WithLabelValues("matched").Inc()
		return Resolution{PersonID: m.PersonID, Distance: m.Distance}, nil
	}

	crop, err := vision.CropJPEG(img, face.Box)
	if err != nil {
		return Resolution{}, err
	}

	id := uuid.New()
	key := storage.FaceKey(id.String() + ".jpg")
	if err := r.blobs.Put(ctx, key, crop, "image/jpeg"); err != nil {
		return Resolution{}, fmt.Errorf("store face crop: %w", err)
	}

	person, err := r.persons.CreatePerson(ctx, defaultName(id), key, 1)
	if err != nil {
		if derr := r.blobs.Delete(ctx, key); derr != nil {
			slog.Warn("remove orphaned face crop", "key", key, "error", derr)
		}
		return Resolution{}, fmt.Errorf("create person: %w", err)
	}

	if r.grow {
		g.Add(person.ID, face.Embedding)
	}
	observability.FacesResolved.WithLabelValues("created").Inc()
	slog.Info("person created", "person_id", person.ID, "name", person.Name, "photo_id", photoID)

	ev := models.PersonCreatedEvent{
		PersonID:  person.ID,
		Name:      person.Name,
		FaceFile:  person.FaceFile,
		PhotoID:   photoID,
		Timestamp: time.Now().UTC(),
	}
	if err := r.events.PublishPersonCreated(ctx, ev); err != nil {
		slog.Warn("publish person created", "person_id", person.ID, "error", err)
	}

	return Resolution{PersonID: person.ID, Created: true}, nil
}

// defaultName is the generated display name of a minted person.
func defaultName(id uuid.UUID) string {
	return "person_" + id.String()[:8]
}
