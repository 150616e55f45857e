package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

// GeofenceService manages the per-user region registry.
type GeofenceService struct {
	repo      ports.GeofenceRepository
	locations LatestLocator
	logger    zerolog.Logger
	now       func() time.Time
}

func NewGeofenceService(repo ports.GeofenceRepository, locations LatestLocator, logger zerolog.Logger) *GeofenceService {
	return &GeofenceService{repo: repo, locations: locations, logger: logger, now: time.Now}
}

func (s *GeofenceService) Create(ctx context.Context, actor domain.Actor, region geo.GeofenceRegion) (*domain.Geofence, error) {
	region.Identifier = strings.TrimSpace(region.Identifier)
	if err := domain.ValidateRegion(region); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	g := &domain.Geofence{
		ID:             uuid.NewString(),
		OwnerID:        actor.UserID,
		GeofenceRegion: region,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info().Str("geofence_id", g.ID).Str("identifier", region.Identifier).Str("owner", actor.UserID).Msg("geofence created")
	return g, nil
}

func (s *GeofenceService) List(ctx context.Context, actor domain.Actor) ([]*domain.Geofence, error) {
	return s.repo.ListByOwner(ctx, actor.UserID)
}

func (s *GeofenceService) Update(ctx context.Context, actor domain.Actor, id string, region geo.GeofenceRegion) (*domain.Geofence, error) {
	region.Identifier = strings.TrimSpace(region.Identifier)
	if err := domain.ValidateRegion(region); err != nil {
		return nil, err
	}
	g, err := s.repo.FindByID(ctx, id, actor.UserID)
	if err != nil {
		return nil, err
	}
	g.GeofenceRegion = region
	g.UpdatedAt = s.now().UTC()
	if err := s.repo.Replace(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GeofenceService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	return s.repo.Delete(ctx, id, actor.UserID)
}

// Status evaluates every region the actor owns against one coordinate.
func (s *GeofenceService) Status(ctx context.Context, actor domain.Actor, location *geo.Coordinate) ([]ports.GeofenceStatus, error) {
	point, err := s.locate(ctx, actor.UserID, location)
	if err != nil {
		return nil, err
	}
	fences, err := s.repo.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]ports.GeofenceStatus, 0, len(fences))
	for _, g := range fences {
		r := geo.Evaluate(point, g.GeofenceRegion)
		out = append(out, ports.GeofenceStatus{
			Geofence:     g,
			Proximity:    r,
			DistanceText: geo.FormatDistance(r.DistanceMeters),
		})
	}
	return out, nil
}

func (s *GeofenceService) locate(ctx context.Context, userID string, location *geo.Coordinate) (geo.Coordinate, error) {
	if location != nil {
		if !location.Valid() {
			return geo.Coordinate{}, domain.ErrInvalidCoordinate
		}
		return *location, nil
	}
	if s.locations == nil {
		return geo.Coordinate{}, domain.ErrNoLocation
	}
	sample, err := s.locations.Latest(ctx, userID)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return sample.Coordinate, nil
}
