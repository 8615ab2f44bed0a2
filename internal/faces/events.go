package faces

import (
	"context"

	"github.com/your-org/facesort/internal/models"
)

// EventPublisher receives pipeline notifications. queue.Producer implements it.
type EventPublisher interface {
	PublishPhotoProcessed(ctx context.Context, ev models.PhotoProcessedEvent) error
	PublishPersonCreated(ctx context.Context, ev models.PersonCreatedEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishPhotoProcessed(context.Context, models.PhotoProcessedEvent) error {
	return nil
}

func (nopPublisher) PublishPersonCreated(context.Context, models.PersonCreatedEvent) error {
	return nil
}
