// Package faces resolves detected faces to persons: it builds the per-run
// gallery of known persons, matches embeddings against it, mints new persons,
// and drives batch runs over unprocessed photos.
package faces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

// Encoder turns an image into one embedding per face it contains.
type Encoder interface {
	Encode(imageData []byte) ([][]float32, error)
}

// Entry is one matchable person in a gallery.
type Entry struct {
	PersonID  string
	Embedding []float32
}

// Gallery is the ordered set of reference embeddings used during one batch
// run. Iteration order is insertion order and decides ties in the matcher.
type Gallery struct {
	entries []Entry
}

func NewGallery(entries ...Entry) *Gallery {
	return &Gallery{entries: append([]Entry(nil), entries...)}
}

func (g *Gallery) Add(personID string, embedding []float32) {
	g.entries = append(g.entries, Entry{PersonID: personID, Embedding: embedding})
}

func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

func (g *Gallery) Entries() []Entry {
	if g == nil {
		return nil
	}
	return g.entries
}

// BuildGallery embeds every person's reference crop, in person creation
// order. Persons whose crop is missing, unreadable or faceless are logged and
// left out; only a failure to list persons is returned.
func BuildGallery(ctx context.Context, persons storage.PersonStore, blobs storage.BlobStore, enc Encoder) (*Gallery, error) {
	all, err := persons.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}

	g := &Gallery{entries: make([]Entry, 0, len(all))}
	for _, p := range all {
		emb, reason, err := referenceEmbedding(ctx, blobs, enc, p.FaceFile)
		if err != nil {
			slog.Warn("person excluded from gallery",
				"person_id", p.ID, "face_file", p.FaceFile, "reason", reason, "error", err)
			observability.GallerySkipped.WithLabelValues(reason).Inc()
			continue
		}
		g.Add(p.ID, emb)
	}

	observability.GallerySize.Set(float64(g.Len()))
	slog.Info("gallery built", "persons", len(all), "matchable", g.Len())
	return g, nil
}

func referenceEmbedding(ctx context.Context, blobs storage.BlobStore, enc Encoder, faceFile string) ([]float32, string, error) {
	if faceFile == "" {
		return nil, "missing", errors.New("no face file")
	}
	data, err := blobs.Get(ctx, faceFile)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, "missing", err
		}
		return nil, "unreadable", err
	}

	embs, err := enc.Encode(data)
	if err != nil {
		return nil, "unreadable", err
	}
	if len(embs) == 0 {
		return nil, "no_face", vision.ErrNoFace
	}
	// A crop is one face; if the encoder finds more, the first is the subject.
	return embs[0], "", nil
}
