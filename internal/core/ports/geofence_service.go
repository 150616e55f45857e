package ports

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
)

// GeofenceStatus is one registry region evaluated against a coordinate.
type GeofenceStatus struct {
	Geofence     *domain.Geofence
	Proximity    geo.ProximityResult
	DistanceText string
}

// GeofenceService manages an actor's regions and evaluates them.
type GeofenceService interface {
	Create(ctx context.Context, actor domain.Actor, region geo.GeofenceRegion) (*domain.Geofence, error)
	List(ctx context.Context, actor domain.Actor) ([]*domain.Geofence, error)
	Update(ctx context.Context, actor domain.Actor, id string, region geo.GeofenceRegion) (*domain.Geofence, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
	// Status evaluates every region of the actor. A nil location falls back
	// to the actor's latest fresh sample, or domain.ErrNoLocation.
	Status(ctx context.Context, actor domain.Actor, location *geo.Coordinate) ([]GeofenceStatus, error)
}
