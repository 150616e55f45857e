package ports

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
)

// GeofenceRepository is the registry of user-owned regions.
type GeofenceRepository interface {
	// Create returns domain.ErrGeofenceExists when the owner already uses the identifier.
	Create(ctx context.Context, g *domain.Geofence) error
	FindByID(ctx context.Context, id, ownerID string) (*domain.Geofence, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Geofence, error)
	Replace(ctx context.Context, g *domain.Geofence) error
	Delete(ctx context.Context, id, ownerID string) error
}
