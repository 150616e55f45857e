package service

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

// LatestLocator abstracts where a user's last known position comes from.
type LatestLocator interface {
	Latest(ctx context.Context, userID string) (*domain.LocationSample, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishTaskEvent(context.Context, domain.TaskEvent) error { return nil }

func (nopPublisher) PublishGeofenceTransition(context.Context, domain.GeofenceTransition) error {
	return nil
}

// publisherOrNop lets the event bus stay optional.
func publisherOrNop(p ports.EventPublisher) ports.EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
