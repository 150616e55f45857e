package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

type locationService struct {
	store     ports.LocationStore
	presence  ports.PresenceStore
	fences    ports.GeofenceRepository
	tasks     ports.TaskRepository
	notifier  ports.Notifier
	publisher ports.EventPublisher
	maxAge    time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewLocationService returns a LocationService implementation. maxAge bounds
// how old a stored sample may be and still count as the user's position.
func NewLocationService(
	store ports.LocationStore,
	presence ports.PresenceStore,
	fences ports.GeofenceRepository,
	tasks ports.TaskRepository,
	notifier ports.Notifier,
	publisher ports.EventPublisher,
	maxAge time.Duration,
	log zerolog.Logger,
) ports.LocationService {
	return &locationService{
		store:     store,
		presence:  presence,
		fences:    fences,
		tasks:     tasks,
		notifier:  notifier,
		publisher: publisherOrNop(publisher),
		maxAge:    maxAge,
		log:       log,
		now:       time.Now,
	}
}

// watchedRegion is a region evaluated for one user, with the task it belongs to.
// key is its presence entry; registry and task regions live in separate
// namespaces so equal identifiers never share state.
type watchedRegion struct {
	key       string
	region    geo.GeofenceRegion
	taskID    string
	taskTitle string
}

// Process stores a sample as the user's position and reacts to boundary crossings.
func (s *locationService) Process(ctx context.Context, sample domain.LocationSample) error {
	if sample.UserID == "" || !sample.Coordinate.Valid() {
		return domain.ErrInvalidCoordinate
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = s.now()
	}
	sample.RecordedAt = sample.RecordedAt.UTC()

	// 1. Ordering: only a newer sample may replace the stored one.
	saved, err := s.store.SaveIfNewer(ctx, sample)
	if err != nil {
		return fmt.Errorf("process location: %w", err)
	}
	if !saved {
		s.log.Debug().Str("user_id", sample.UserID).Time("recorded_at", sample.RecordedAt).Msg("stale sample dropped")
		return domain.ErrStaleSample
	}

	// 2. Everything this user is watched against.
	regions, err := s.regionsFor(ctx, sample.UserID)
	if err != nil {
		return fmt.Errorf("process location: %w", err)
	}

	// 3. Previous containment state.
	inside, err := s.presence.Inside(ctx, sample.UserID)
	if err != nil {
		return fmt.Errorf("process location: presence: %w", err)
	}

	// 4. Compare and record transitions.
	var (
		notes       []*domain.Notification
		transitions []domain.GeofenceTransition
		current     = make(map[string]struct{}, len(regions))
	)
	for _, w := range regions {
		id := w.key
		current[id] = struct{}{}

		result := geo.Evaluate(sample.Coordinate, w.region)
		if result.Unknown() {
			continue
		}
		was := inside[id]
		if result.WithinRadius == was {
			continue
		}

		direction := domain.TransitionExit
		persist := s.presence.Exit
		notify := w.region.NotifyOnExit
		if result.WithinRadius {
			direction = domain.TransitionEnter
			persist = s.presence.Enter
			notify = w.region.NotifyOnEnter
		}
		if err := persist(ctx, sample.UserID, id); err != nil {
			s.log.Warn().Err(err).Str("user_id", sample.UserID).Str("region", id).Msg("failed to persist presence")
			continue
		}
		if !notify {
			continue
		}

		t := domain.GeofenceTransition{
			UserID:     sample.UserID,
			Region:     w.region,
			TaskID:     w.taskID,
			Direction:  direction,
			Distance:   result.DistanceMeters,
			OccurredAt: sample.RecordedAt,
		}
		transitions = append(transitions, t)
		notes = append(notes, s.alert(t, w.taskTitle))
	}

	// Regions that disappeared since the last sample are left silently.
	for id := range inside {
		if _, ok := current[id]; ok {
			continue
		}
		if err := s.presence.Exit(ctx, sample.UserID, id); err != nil {
			s.log.Warn().Err(err).Str("user_id", sample.UserID).Str("region", id).Msg("failed to clear presence")
		}
	}

	// 5. Fan out (non-fatal on failure).
	if len(notes) > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, notes...); err != nil {
			s.log.Warn().Err(err).Str("user_id", sample.UserID).Msg("failed to write geofence alerts")
		}
	}
	for _, t := range transitions {
		if err := s.publisher.PublishGeofenceTransition(ctx, t); err != nil {
			s.log.Warn().Err(err).Str("user_id", sample.UserID).Str("region", t.Region.Identifier).Msg("failed to publish transition")
		}
	}

	s.log.Debug().
		Str("user_id", sample.UserID).
		Str("source", sample.Source).
		Int("regions", len(regions)).
		Int("transitions", len(transitions)).
		Msg("location processed")

	return nil
}

// Latest returns the user's stored sample while it is still fresh.
func (s *locationService) Latest(ctx context.Context, userID string) (*domain.LocationSample, error) {
	sample, err := s.store.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sample.Fresh(s.now(), s.maxAge) {
		return nil, domain.ErrNoLocation
	}
	return sample, nil
}

func (s *locationService) regionsFor(ctx context.Context, userID string) ([]watchedRegion, error) {
	var out []watchedRegion
	watched := make(map[string]struct{})
	if s.tasks != nil {
		tasks, err := s.tasks.ListOpenGeofenced(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		for _, t := range tasks {
			if t.Geofence == nil || !t.Geofence.Valid() {
				continue
			}
			watched[t.ID] = struct{}{}
			out = append(out, watchedRegion{
				key:       taskPresenceKey(t.ID),
				region:    t.Geofence.Region(t.ID),
				taskID:    t.ID,
				taskTitle: t.Title,
			})
		}
	}
	if s.fences != nil {
		fences, err := s.fences.ListByOwner(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list geofences: %w", err)
		}
		for _, g := range fences {
			// A registry copy of an open task's geofence is already watched
			// through the task itself.
			if coversWatchedTask(g, watched) {
				continue
			}
			out = append(out, watchedRegion{key: registryPresenceKey(g.Identifier), region: g.GeofenceRegion, taskID: g.TaskID})
		}
	}
	return out, nil
}

func coversWatchedTask(g *domain.Geofence, watched map[string]struct{}) bool {
	if _, ok := watched[g.TaskID]; ok && g.TaskID != "" {
		return true
	}
	for id := range watched {
		if g.Identifier == domain.TaskRegionIdentifier(id) {
			return true
		}
	}
	return false
}

func registryPresenceKey(identifier string) string { return "geofence:" + identifier }

func taskPresenceKey(taskID string) string { return "task:" + taskID }

func (s *locationService) alert(t domain.GeofenceTransition, taskTitle string) *domain.Notification {
	name := t.Region.Identifier
	if taskTitle != "" {
		name = strconv.Quote(taskTitle)
	}
	var title, body string
	if t.Direction == domain.TransitionEnter {
		title = "Geofence entered"
		body = fmt.Sprintf("You are within %s of %s", geo.FormatDistance(t.Distance), name)
	} else {
		title = "Geofence left"
		body = fmt.Sprintf("You left %s", name)
	}
	return &domain.Notification{
		ID:     uuid.NewString(),
		UserID: t.UserID,
		Type:   domain.NotificationGeofenceAlert,
		Title:  title,
		Body:   body,
		TaskID: t.TaskID,
		Data: map[string]string{
			"region":     t.Region.Identifier,
			"direction":  string(t.Direction),
			"distance_m": strconv.FormatFloat(t.Distance, 'f', 0, 64),
		},
		CreatedAt: s.now().UTC(),
	}
}
