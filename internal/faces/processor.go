package faces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

var errMissingImage = errors.New("source image missing")

type Options struct {
	// Threshold is the matcher distance; zero means DefaultThreshold.
	Threshold   float64
	GrowGallery bool
	Events      EventPublisher
}

// Processor runs batch passes over unprocessed photos.
type Processor struct {
	store    storage.DocumentStore
	blobs    storage.BlobStore
	provider vision.Provider
	resolver *Resolver
	events   EventPublisher
}

func NewProcessor(store storage.DocumentStore, blobs storage.BlobStore, provider vision.Provider, opts Options) *Processor {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	return &Processor{
		store:    store,
		blobs:    blobs,
		provider: provider,
		resolver: NewResolver(store, blobs, Matcher{Threshold: opts.Threshold}, opts.Events, opts.GrowGallery),
		events:   opts.Events,
	}
}

// RunStats summarises one RunOnce pass.
type RunStats struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	GallerySize    int       `json:"gallery_size"`
	Selected       int       `json:"selected"`
	Processed      int       `json:"processed"`
	Failed         int       `json:"failed"`
	Missing        int       `json:"missing"`
	Skipped        int       `json:"skipped"`
	WriteErrors    int       `json:"write_errors"`
	Faces          int       `json:"faces"`
	PersonsMatched int       `json:"persons_matched"`
	PersonsCreated int       `json:"persons_created"`
	Cancelled      bool      `json:"cancelled"`
}

// RunOnce processes every photo that is unprocessed when the run begins,
// each exactly once. Cancelling ctx stops the run between photos; the photo
// in flight always finishes. Only an unreachable store or a failed gallery
// build aborts the run, leaving all photos unprocessed.
func (p *Processor) RunOnce(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{StartedAt: time.Now().UTC()}
	defer func() { stats.FinishedAt = time.Now().UTC() }()

	if err := p.store.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}
		return stats, fmt.Errorf("store unreachable: %w", err)
	}

	gallery, err := BuildGallery(ctx, p.store, p.blobs, p.provider)
	if err != nil {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}
		return stats, fmt.Errorf("build gallery: %w", err)
	}
	stats.GallerySize = gallery.Len()

	photos, err := p.store.ListUnprocessedPhotos(ctx)
	if err != nil {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}
		return stats, fmt.Errorf("list unprocessed photos: %w", err)
	}
	stats.Selected = len(photos)
	slog.Info("batch run started", "photos", len(photos), "gallery", gallery.Len())

	// Per-photo work must not be interrupted by a stop signal.
	work := context.WithoutCancel(ctx)
	for _, photo := range photos {
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		p.processPhoto(work, photo, gallery, stats)
	}

	slog.Info("batch run finished",
		"processed", stats.Processed, "failed", stats.Failed, "missing", stats.Missing,
		"persons_created", stats.PersonsCreated, "persons_matched", stats.PersonsMatched,
		"cancelled", stats.Cancelled)
	return stats, nil
}

func (p *Processor) processPhoto(ctx context.Context, photo models.Photo, g *Gallery, stats *RunStats) {
	log := slog.With("photo_id", photo.ID, "filename", photo.Filename)

	people, err := p.resolvePhoto(ctx, photo, g, stats)

	var (
		state   models.ProcessingState
		message string
		werr    error
	)
	switch {
	case errors.Is(err, errMissingImage):
		log.Warn("source image missing, marking processed")
		state, people = models.StateProcessed, []models.FaceAnnotation{}
		werr = p.store.MarkProcessed(ctx, photo.ID, people)
	case err != nil:
		log.Error("photo processing failed", "error", err)
		state, people, message = models.StateProcessedWithError, nil, err.Error()
		werr = p.store.MarkFailed(ctx, photo.ID, message)
	default:
		state = models.StateProcessed
		werr = p.store.MarkProcessed(ctx, photo.ID, people)
	}

	switch {
	case errors.Is(werr, storage.ErrPhotoFinalized):
		log.Info("photo finalized by another run, skipping")
		stats.Skipped++
		return
	case werr != nil:
		log.Error("write photo result", "error", werr)
		stats.WriteErrors++
		return
	}

	switch {
	case errors.Is(err, errMissingImage):
		stats.Missing++
	case err != nil:
		stats.Failed++
	default:
		stats.Processed++
	}
	observability.PhotosProcessed.WithLabelValues(string(state)).Inc()
	log.Info("photo processed", "state", state, "faces", len(people))

	ev := models.PhotoProcessedEvent{
		PhotoID:   photo.ID,
		State:     state,
		People:    people,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
	if err := p.events.PublishPhotoProcessed(ctx, ev); err != nil {
		log.Warn("publish photo processed", "error", err)
	}
}

// resolvePhoto detects the faces of one photo and resolves them in detector
// order. A panic anywhere below is returned as the photo's error. When the
// photo fails, counters already raised for its faces are lowered again.
func (p *Processor) resolvePhoto(ctx context.Context, photo models.Photo, g *Gallery, stats *RunStats) (people []models.FaceAnnotation, err error) {
	var attached []string
	defer func() {
		if err != nil {
			p.detach(ctx, photo.ID, attached)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing photo", "photo_id", photo.ID, "panic", r, "stack", string(debug.Stack()))
			people, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	data, err := p.blobs.Get(ctx, storage.PhotoKey(photo.Filename))
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, errMissingImage
		}
		return nil, fmt.Errorf("load image: %w", err)
	}

	img, err := vision.DecodeImage(data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	faces, err := p.provider.Detect(data)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	observability.FacesDetected.Add(float64(len(faces)))

	people = make([]models.FaceAnnotation, 0, len(faces))
	for i, f := range faces {
		box, ok := vision.ClampBox(f.Box, img.Bounds())
		if !ok {
			slog.Warn("dropping face outside image", "photo_id", photo.ID, "box", f.Box, "bounds", img.Bounds())
			continue
		}

		res, err := p.resolver.Resolve(ctx, photo.ID, img, vision.Face{Box: box, Embedding: f.Embedding}, g)
		if err != nil {
			return nil, fmt.Errorf("resolve face %d: %w", i, err)
		}
		attached = append(attached, res.PersonID)
		stats.Faces++
		if res.Created {
			stats.PersonsCreated++
		} else {
			stats.PersonsMatched++
		}
		people = append(people, models.FaceAnnotation{PersonID: res.PersonID, Box: models.BoxFromRect(box)})
	}
	return people, nil
}

// detach undoes the counter increments of a failed photo. Persons minted for
// it stay behind with a zero count.
func (p *Processor) detach(ctx context.Context, photoID string, personIDs []string) {
	for _, id := range personIDs {
		if err := p.store.AdjustPhotoCount(ctx, id, -1); err != nil {
			slog.Error("roll back person count", "photo_id", photoID, "person_id", id, "error", err)
		}
	}
}
