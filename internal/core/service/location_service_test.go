package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubLocationStore struct {
	latest  map[string]domain.LocationSample
	saveErr error
}

func newStubLocationStore() *stubLocationStore {
	return &stubLocationStore{latest: make(map[string]domain.LocationSample)}
}

func (s *stubLocationStore) SaveIfNewer(_ context.Context, sample domain.LocationSample) (bool, error) {
	if s.saveErr != nil {
		return false, s.saveErr
	}
	if prev, ok := s.latest[sample.UserID]; ok && !sample.RecordedAt.After(prev.RecordedAt) {
		return false, nil
	}
	s.latest[sample.UserID] = sample
	return true, nil
}

func (s *stubLocationStore) Latest(_ context.Context, userID string) (*domain.LocationSample, error) {
	sample, ok := s.latest[userID]
	if !ok {
		return nil, domain.ErrNoLocation
	}
	return &sample, nil
}

type stubPresence struct {
	inside    map[string]map[string]bool
	insideErr error
	enterErr  error
}

func newStubPresence() *stubPresence {
	return &stubPresence{inside: make(map[string]map[string]bool)}
}

func (p *stubPresence) Inside(_ context.Context, userID string) (map[string]bool, error) {
	if p.insideErr != nil {
		return nil, p.insideErr
	}
	out := map[string]bool{}
	for k, v := range p.inside[userID] {
		out[k] = v
	}
	return out, nil
}

func (p *stubPresence) Enter(_ context.Context, userID, id string) error {
	if p.enterErr != nil {
		return p.enterErr
	}
	if p.inside[userID] == nil {
		p.inside[userID] = map[string]bool{}
	}
	p.inside[userID][id] = true
	return nil
}

func (p *stubPresence) Exit(_ context.Context, userID, id string) error {
	delete(p.inside[userID], id)
	return nil
}

// ---------------------------------------------------------------------------
// Helper: a user watching one registry region and one task geofence.
// ---------------------------------------------------------------------------

type locationFixture struct {
	svc       *locationService
	store     *stubLocationStore
	presence  *stubPresence
	fences    *stubGeofenceRepo
	tasks     *stubTaskRepo
	notifier  *stubNotifier
	publisher *stubPublisher
}

func newLocationFixture() *locationFixture {
	f := &locationFixture{
		store:     newStubLocationStore(),
		presence:  newStubPresence(),
		fences:    newStubGeofenceRepo(),
		tasks:     newStubTaskRepo(),
		notifier:  &stubNotifier{},
		publisher: &stubPublisher{},
	}
	svc := NewLocationService(f.store, f.presence, f.fences, f.tasks, f.notifier, f.publisher, 10*time.Minute, zerolog.Nop())
	f.svc = svc.(*locationService)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *locationFixture) sample(c geo.Coordinate, offset time.Duration) domain.LocationSample {
	return domain.LocationSample{UserID: userActor.UserID, Coordinate: c, RecordedAt: fixedNow.Add(offset), Source: "test"}
}

func (f *locationFixture) watchRegion(r geo.GeofenceRegion) {
	f.fences.fences["g-"+r.Identifier] = &domain.Geofence{ID: "g-" + r.Identifier, OwnerID: userActor.UserID, GeofenceRegion: r}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestLocationService_Process_StoresLatest(t *testing.T) {
	f := newLocationFixture()

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	got, err := f.svc.Latest(context.Background(), userActor.UserID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if got.Coordinate != sfCenter {
		t.Errorf("unexpected latest sample: %+v", got)
	}
}

func TestLocationService_Process_InvalidSample(t *testing.T) {
	f := newLocationFixture()

	bad := f.sample(geo.Coordinate{Lat: 95, Lng: 0}, 0)
	if err := f.svc.Process(context.Background(), bad); err != domain.ErrInvalidCoordinate {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
	anon := f.sample(sfCenter, 0)
	anon.UserID = ""
	if err := f.svc.Process(context.Background(), anon); err != domain.ErrInvalidCoordinate {
		t.Errorf("expected ErrInvalidCoordinate for missing user, got %v", err)
	}
	if len(f.store.latest) != 0 {
		t.Error("invalid samples must not be stored")
	}
}

func TestLocationService_Process_StaleSampleDropped(t *testing.T) {
	f := newLocationFixture()
	f.watchRegion(region("home", sfCenter, 100))

	if err := f.svc.Process(context.Background(), f.sample(sfNorth1km, time.Minute)); err != nil {
		t.Fatal(err)
	}
	// An older sample from inside the region arrives late.
	err := f.svc.Process(context.Background(), f.sample(sfCenter, 0))
	if !errors.Is(err, domain.ErrStaleSample) {
		t.Fatalf("expected ErrStaleSample, got %v", err)
	}
	if f.store.latest[userActor.UserID].Coordinate != sfNorth1km {
		t.Error("stale sample replaced the newer one")
	}
	if len(f.notifier.sent) != 0 || len(f.presence.inside[userActor.UserID]) != 0 {
		t.Error("stale sample must not trigger transitions")
	}
}

func TestLocationService_Process_EnterAndExit(t *testing.T) {
	f := newLocationFixture()
	r := region("home", sfCenter, 500)
	r.NotifyOnExit = true
	f.watchRegion(r)
	ctx := context.Background()

	// Outside first: no transition from the initial "outside" state.
	if err := f.svc.Process(ctx, f.sample(sfNorth1km, 0)); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("no alert expected while staying outside, got %d", len(f.notifier.sent))
	}

	if err := f.svc.Process(ctx, f.sample(sfCenter, time.Minute)); err != nil {
		t.Fatal(err)
	}
	if !f.presence.inside[userActor.UserID]["geofence:home"] {
		t.Fatal("presence not recorded on enter")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Type != domain.NotificationGeofenceAlert {
		t.Fatalf("expected one GEOFENCE_ALERT, got %+v", f.notifier.sent)
	}
	if len(f.publisher.transitions) != 1 || f.publisher.transitions[0].Direction != domain.TransitionEnter {
		t.Fatalf("expected enter transition, got %+v", f.publisher.transitions)
	}

	// Staying inside does not re-alert.
	if err := f.svc.Process(ctx, f.sample(sfCenter, 2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected no repeated alert, got %d", len(f.notifier.sent))
	}

	if err := f.svc.Process(ctx, f.sample(sfNorth1km, 3*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if f.presence.inside[userActor.UserID]["geofence:home"] {
		t.Error("presence not cleared on exit")
	}
	if len(f.publisher.transitions) != 2 || f.publisher.transitions[1].Direction != domain.TransitionExit {
		t.Errorf("expected exit transition, got %+v", f.publisher.transitions)
	}
}

func TestLocationService_Process_NotifyFlagsRespected(t *testing.T) {
	f := newLocationFixture()
	f.watchRegion(geo.GeofenceRegion{Identifier: "quiet", Center: sfCenter, RadiusMeters: 500})
	ctx := context.Background()

	if err := f.svc.Process(ctx, f.sample(sfCenter, 0)); err != nil {
		t.Fatal(err)
	}
	if !f.presence.inside[userActor.UserID]["geofence:quiet"] {
		t.Error("presence must be tracked even without notifications")
	}
	if len(f.notifier.sent) != 0 || len(f.publisher.transitions) != 0 {
		t.Error("region without notify flags must stay silent")
	}
}

func TestLocationService_Process_TaskGeofence(t *testing.T) {
	f := newLocationFixture()
	f.tasks.tasks["t1"] = &domain.Task{
		ID:        "t1",
		Title:     "Deliver",
		Status:    domain.TaskNew,
		Geofence:  &domain.TaskGeofence{Center: sfCenter, RadiusMeters: 200},
		Assignees: []domain.Assignment{{UserID: userActor.UserID}},
	}
	f.tasks.tasks["t2"] = &domain.Task{
		ID:        "t2",
		Status:    domain.TaskCompleted,
		Geofence:  &domain.TaskGeofence{Center: sfCenter, RadiusMeters: 200},
		Assignees: []domain.Assignment{{UserID: userActor.UserID}},
	}

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one alert for the open task, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.TaskID != "t1" || n.Data["region"] != domain.TaskRegionIdentifier("t1") {
		t.Errorf("unexpected alert: %+v", n)
	}
	if f.publisher.transitions[0].TaskID != "t1" {
		t.Errorf("transition should carry the task id: %+v", f.publisher.transitions[0])
	}
}

func (f *locationFixture) assignGeofencedTask(id string, radius float64) {
	f.tasks.tasks[id] = &domain.Task{
		ID:        id,
		Title:     "Deliver",
		Status:    domain.TaskNew,
		Geofence:  &domain.TaskGeofence{Center: sfCenter, RadiusMeters: radius},
		Assignees: []domain.Assignment{{UserID: userActor.UserID}},
	}
}

func TestLocationService_Process_RegistryCopyOfTaskGeofenceAlertsOnce(t *testing.T) {
	f := newLocationFixture()
	f.assignGeofencedTask("t1", 200)
	f.watchRegion(region(domain.TaskRegionIdentifier("t1"), sfCenter, 200))

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.sent) != 1 || len(f.publisher.transitions) != 1 {
		t.Fatalf("expected one alert and one transition, got alerts=%d transitions=%d",
			len(f.notifier.sent), len(f.publisher.transitions))
	}
	if f.notifier.sent[0].TaskID != "t1" {
		t.Errorf("alert should come from the task geofence: %+v", f.notifier.sent[0])
	}
}

func TestLocationService_Process_StationaryUserNotRealerted(t *testing.T) {
	f := newLocationFixture()
	f.assignGeofencedTask("t1", 50)
	f.watchRegion(region(domain.TaskRegionIdentifier("t1"), sfCenter, 500))
	f.watchRegion(region("t1", sfCenter, 500))
	// ~111 m north: outside the task radius, inside the registry region.
	near := geo.Coordinate{Lat: sfCenter.Lat + 0.001, Lng: sfCenter.Lng}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := f.svc.Process(ctx, f.sample(near, time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected a single enter alert, got %d", len(f.notifier.sent))
	}
	inside := f.presence.inside[userActor.UserID]
	if !inside["geofence:t1"] || inside["task:t1"] {
		t.Errorf("registry and task presence must be tracked apart, got %v", inside)
	}
}

func TestLocationService_Process_RemovedRegionClearedSilently(t *testing.T) {
	f := newLocationFixture()
	f.presence.inside[userActor.UserID] = map[string]bool{"gone": true}

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err != nil {
		t.Fatal(err)
	}
	if f.presence.inside[userActor.UserID]["gone"] {
		t.Error("presence for a deleted region should be cleared")
	}
	if len(f.publisher.transitions) != 0 {
		t.Error("clearing a deleted region is not a transition")
	}
}

func TestLocationService_Process_PresenceErrors(t *testing.T) {
	f := newLocationFixture()
	f.watchRegion(region("home", sfCenter, 500))
	f.presence.insideErr = errors.New("redis down")

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err == nil {
		t.Fatal("expected error when presence cannot be read")
	}

	f.presence.insideErr = nil
	f.presence.enterErr = errors.New("redis down")
	if err := f.svc.Process(context.Background(), f.sample(sfCenter, time.Minute)); err != nil {
		t.Fatalf("write failures are logged, not returned: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Error("no alert when the transition could not be persisted")
	}
}

func TestLocationService_Process_FanOutFailureIsNonFatal(t *testing.T) {
	f := newLocationFixture()
	f.watchRegion(region("home", sfCenter, 500))
	f.notifier.err = errors.New("mongo down")
	f.publisher.err = errors.New("nats down")

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !f.presence.inside[userActor.UserID]["geofence:home"] {
		t.Error("presence must still be recorded")
	}
}

func TestLocationService_Process_StoreError(t *testing.T) {
	f := newLocationFixture()
	f.store.saveErr = errors.New("redis down")

	if err := f.svc.Process(context.Background(), f.sample(sfCenter, 0)); err == nil {
		t.Fatal("expected error when store fails")
	}
}

func TestLocationService_Latest_Freshness(t *testing.T) {
	f := newLocationFixture()
	ctx := context.Background()

	if _, err := f.svc.Latest(ctx, userActor.UserID); !errors.Is(err, domain.ErrNoLocation) {
		t.Errorf("expected ErrNoLocation, got %v", err)
	}

	f.store.latest[userActor.UserID] = f.sample(sfCenter, -11*time.Minute)
	if _, err := f.svc.Latest(ctx, userActor.UserID); !errors.Is(err, domain.ErrNoLocation) {
		t.Errorf("expired sample must not count, got %v", err)
	}

	f.store.latest[userActor.UserID] = f.sample(sfCenter, -9*time.Minute)
	if _, err := f.svc.Latest(ctx, userActor.UserID); err != nil {
		t.Errorf("fresh sample expected, got %v", err)
	}
}

var _ ports.LocationService = (*locationService)(nil)
