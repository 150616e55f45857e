package ports

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
)

// EventPublisher fans domain events out to other systems.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error
	PublishGeofenceTransition(ctx context.Context, t domain.GeofenceTransition) error
}
