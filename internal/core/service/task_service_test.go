package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stubs
// ---------------------------------------------------------------------------

type stubTaskRepo struct {
	tasks      map[string]*domain.Task
	createErr  error
	statsScope *string // assigneeID passed to the last Stats call
}

func newStubTaskRepo() *stubTaskRepo {
	return &stubTaskRepo{tasks: make(map[string]*domain.Task)}
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Assignees = append([]domain.Assignment(nil), t.Assignees...)
	if t.Geofence != nil {
		g := *t.Geofence
		c.Geofence = &g
	}
	return &c
}

// sorted returns matching tasks in creation order, like the Mongo repo.
func (r *stubTaskRepo) sorted(keep func(*domain.Task) bool) []*domain.Task {
	var out []*domain.Task
	for _, t := range r.tasks {
		if keep(t) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *stubTaskRepo) Create(_ context.Context, t *domain.Task) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *stubTaskRepo) FindByID(_ context.Context, id string) (*domain.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (r *stubTaskRepo) Replace(_ context.Context, t *domain.Task, prev time.Time) error {
	stored, ok := r.tasks[t.ID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if !stored.UpdatedAt.Equal(prev) {
		return domain.ErrTaskConflict
	}
	r.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *stubTaskRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *stubTaskRepo) ListByAssignee(_ context.Context, userID string) ([]*domain.Task, error) {
	return r.sorted(func(t *domain.Task) bool {
		_, ok := t.Assignment(userID)
		return ok
	}), nil
}

func (r *stubTaskRepo) ListOpenGeofenced(_ context.Context, userID string) ([]*domain.Task, error) {
	return r.sorted(func(t *domain.Task) bool {
		if t.Geofence == nil || !t.Status.Open() {
			return false
		}
		if userID == "" {
			return true
		}
		_, ok := t.Assignment(userID)
		return ok
	}), nil
}

func (r *stubTaskRepo) List(_ context.Context, f ports.ListTasksFilter) ([]*domain.Task, int64, error) {
	matched := r.sorted(func(t *domain.Task) bool {
		if f.Status != "" && string(t.Status) != f.Status {
			return false
		}
		if f.AssigneeID != "" {
			if _, ok := t.Assignment(f.AssigneeID); !ok {
				return false
			}
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
				return false
			}
		}
		return true
	})
	total := int64(len(matched))

	skip := (f.Page - 1) * f.Limit
	if skip > len(matched) {
		return []*domain.Task{}, total, nil
	}
	end := skip + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[skip:end], total, nil
}

func (r *stubTaskRepo) UpdateStatus(_ context.Context, id string, from, to domain.TaskStatus, at time.Time) error {
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if t.Status != from {
		return domain.ErrInvalidTransition
	}
	t.Status = to
	t.UpdatedAt = at
	return nil
}

func (r *stubTaskRepo) Acknowledge(_ context.Context, id, userID string, at time.Time) error {
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	a, ok := t.Assignment(userID)
	if !ok {
		return domain.ErrNotAssigned
	}
	if a.AcknowledgedAt != nil {
		return domain.ErrAlreadyAcknowledged
	}
	a.AcknowledgedAt = &at
	t.UpdatedAt = at
	return nil
}

func (r *stubTaskRepo) Stats(_ context.Context, assigneeID string, now time.Time) (*ports.TaskStats, error) {
	r.statsScope = &assigneeID
	stats := &ports.TaskStats{}
	for _, t := range r.tasks {
		if assigneeID != "" {
			if _, ok := t.Assignment(assigneeID); !ok {
				continue
			}
		}
		switch t.Status {
		case domain.TaskNew:
			stats.New++
		case domain.TaskInProgress:
			stats.InProgress++
		case domain.TaskCompleted:
			stats.Completed++
		case domain.TaskCancelled:
			stats.Cancelled++
		}
		if t.Overdue(now) {
			stats.Overdue++
		}
		if t.Geofence != nil {
			stats.Geofenced++
		}
	}
	return stats, nil
}

type stubNotifier struct {
	sent []*domain.Notification
	err  error
}

func (n *stubNotifier) Notify(_ context.Context, ns ...*domain.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, ns...)
	return nil
}

func (n *stubNotifier) forUser(userID string) []*domain.Notification {
	var out []*domain.Notification
	for _, x := range n.sent {
		if x.UserID == userID {
			out = append(out, x)
		}
	}
	return out
}

type stubPublisher struct {
	taskEvents  []domain.TaskEvent
	transitions []domain.GeofenceTransition
	err         error
}

func (p *stubPublisher) PublishTaskEvent(_ context.Context, e domain.TaskEvent) error {
	if p.err != nil {
		return p.err
	}
	p.taskEvents = append(p.taskEvents, e)
	return nil
}

func (p *stubPublisher) PublishGeofenceTransition(_ context.Context, t domain.GeofenceTransition) error {
	if p.err != nil {
		return p.err
	}
	p.transitions = append(p.transitions, t)
	return nil
}

func (p *stubPublisher) types() []domain.TaskEventType {
	var out []domain.TaskEventType
	for _, e := range p.taskEvents {
		out = append(out, e.Type)
	}
	return out
}

type stubLocator struct {
	samples map[string]*domain.LocationSample
	err     error
}

func (l *stubLocator) Latest(_ context.Context, userID string) (*domain.LocationSample, error) {
	if l.err != nil {
		return nil, l.err
	}
	s, ok := l.samples[userID]
	if !ok {
		return nil, domain.ErrNoLocation
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sfCenter = geo.Coordinate{Lat: 37.7749, Lng: -122.4194}
	// roughly 1 km due north of sfCenter
	sfNorth1km = geo.Coordinate{Lat: 37.7749 + 0.009, Lng: -122.4194}
)

type taskFixture struct {
	svc       *TaskService
	tasks     *stubTaskRepo
	users     *stubUserRepo
	notifier  *stubNotifier
	publisher *stubPublisher
	locator   *stubLocator
}

func newTaskFixture() *taskFixture {
	f := &taskFixture{
		tasks:     newStubTaskRepo(),
		users:     newStubUserRepo(),
		notifier:  &stubNotifier{},
		publisher: &stubPublisher{},
		locator:   &stubLocator{samples: map[string]*domain.LocationSample{}},
	}
	f.users.seedUser(adminActor.UserID, adminActor.Email, domain.RoleAdmin)
	f.users.seedUser(userActor.UserID, userActor.Email, domain.RoleUser)
	f.users.seedUser("user-2", "second@example.com", domain.RoleUser)
	f.svc = NewTaskService(f.tasks, f.users, f.locator, f.notifier, f.publisher, TaskServiceConfig{MapPadding: 1.5}, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *taskFixture) create(t *testing.T, in ports.CreateTaskInput) *domain.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), adminActor, in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func geofenced(title string, center geo.Coordinate, radius float64, assignees ...string) ports.CreateTaskInput {
	return ports.CreateTaskInput{
		Title:       title,
		Geofence:    &ports.GeofenceInput{Lat: center.Lat, Lng: center.Lng, RadiusM: radius},
		AssigneeIDs: assignees,
	}
}

// ---------------------------------------------------------------------------
// CreateTask
// ---------------------------------------------------------------------------

func TestTaskService_Create_Success(t *testing.T) {
	f := newTaskFixture()

	task := f.create(t, geofenced("  Inspect site  ", sfCenter, 500, userActor.UserID, "user-2", userActor.UserID))

	if task.Status != domain.TaskNew {
		t.Errorf("expected status NEW, got %s", task.Status)
	}
	if task.Title != "Inspect site" {
		t.Errorf("expected trimmed title, got %q", task.Title)
	}
	if task.CreatedByEmail != adminActor.Email {
		t.Errorf("unexpected creator email %q", task.CreatedByEmail)
	}
	if len(task.Assignees) != 2 {
		t.Fatalf("expected duplicate assignees collapsed to 2, got %d", len(task.Assignees))
	}
	if task.Assignees[1].Email != "second@example.com" {
		t.Errorf("assignee email not resolved: %+v", task.Assignees[1])
	}
	if _, ok := f.tasks.tasks[task.ID]; !ok {
		t.Error("task not persisted")
	}
	if len(f.notifier.sent) != 2 || f.notifier.sent[0].Type != domain.NotificationTaskAssigned {
		t.Errorf("expected one TASK_ASSIGNED per assignee, got %+v", f.notifier.sent)
	}
	got := f.publisher.types()
	if len(got) != 2 || got[0] != domain.TaskEventCreated || got[1] != domain.TaskEventAssigned {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestTaskService_Create_Validation(t *testing.T) {
	f := newTaskFixture()
	ctx := context.Background()

	if _, err := f.svc.CreateTask(ctx, adminActor, ports.CreateTaskInput{Title: "   "}); !errors.Is(err, domain.ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask for blank title, got %v", err)
	}
	if _, err := f.svc.CreateTask(ctx, adminActor, geofenced("x", sfCenter, 0)); err != domain.ErrInvalidGeofence {
		t.Errorf("expected ErrInvalidGeofence for zero radius, got %v", err)
	}
	if _, err := f.svc.CreateTask(ctx, adminActor, geofenced("x", geo.Coordinate{Lat: 91, Lng: 0}, 100)); err != domain.ErrInvalidGeofence {
		t.Errorf("expected ErrInvalidGeofence for bad latitude, got %v", err)
	}
	if _, err := f.svc.CreateTask(ctx, adminActor, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{"ghost"}}); !errors.Is(err, domain.ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask for unknown assignee, got %v", err)
	}
	if len(f.tasks.tasks) != 0 {
		t.Errorf("nothing should be stored, got %d tasks", len(f.tasks.tasks))
	}
}

func TestTaskService_Create_RepoError(t *testing.T) {
	f := newTaskFixture()
	f.tasks.createErr = errors.New("db unavailable")

	if _, err := f.svc.CreateTask(context.Background(), adminActor, ports.CreateTaskInput{Title: "x"}); err == nil {
		t.Fatal("expected error when repo fails, got nil")
	}
	if len(f.publisher.taskEvents) != 0 {
		t.Error("no event should be published for a failed create")
	}
}

func TestTaskService_Create_SideEffectFailuresAreNonFatal(t *testing.T) {
	f := newTaskFixture()
	f.notifier.err = errors.New("mongo down")
	f.publisher.err = errors.New("nats down")

	if _, err := f.svc.CreateTask(context.Background(), adminActor, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{userActor.UserID}}); err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestTaskService_Get_Visibility(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "mine", AssigneeIDs: []string{"user-2"}})
	ctx := context.Background()

	if _, err := f.svc.GetTask(ctx, userActor, task.ID, nil); err != domain.ErrTaskNotFound {
		t.Errorf("unassigned user must not see the task, got %v", err)
	}
	if _, err := f.svc.GetTask(ctx, adminActor, task.ID, nil); err != nil {
		t.Errorf("admin should see any task, got %v", err)
	}
	other := domain.Actor{UserID: "user-2", Role: domain.RoleUser}
	if _, err := f.svc.GetTask(ctx, other, task.ID, nil); err != nil {
		t.Errorf("assignee should see the task, got %v", err)
	}
}

func TestTaskService_ListMyTasks_AnnotatesProximity(t *testing.T) {
	f := newTaskFixture()
	near := f.create(t, geofenced("near", sfCenter, 1500, userActor.UserID))
	f.svc.now = func() time.Time { return fixedNow.Add(time.Second) }
	far := f.create(t, geofenced("far", sfCenter, 500, userActor.UserID))
	f.svc.now = func() time.Time { return fixedNow.Add(2 * time.Second) }
	plain := f.create(t, ports.CreateTaskInput{Title: "plain", AssigneeIDs: []string{userActor.UserID}})
	f.create(t, ports.CreateTaskInput{Title: "not mine", AssigneeIDs: []string{"user-2"}})

	loc := sfNorth1km
	views, err := f.svc.ListMyTasks(context.Background(), userActor, &loc)
	if err != nil {
		t.Fatalf("ListMyTasks failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 assigned tasks, got %d", len(views))
	}

	byID := map[string]ports.TaskView{}
	for _, v := range views {
		byID[v.Task.ID] = v
	}
	n := byID[near.ID]
	if n.Proximity == nil || !n.Proximity.WithinRadius {
		t.Errorf("expected to be within 1500 m: %+v", n.Proximity)
	}
	if n.Proximity != nil && (n.Proximity.DistanceMeters < 990 || n.Proximity.DistanceMeters > 1010) {
		t.Errorf("expected ~1000 m, got %f", n.Proximity.DistanceMeters)
	}
	if n.DistanceText != "1.0km" {
		t.Errorf("expected 1.0km, got %q", n.DistanceText)
	}
	if fv := byID[far.ID]; fv.Proximity == nil || fv.Proximity.WithinRadius {
		t.Errorf("expected to be outside 500 m: %+v", fv.Proximity)
	}
	if pv := byID[plain.ID]; pv.Proximity != nil || pv.DistanceText != "" {
		t.Errorf("task without geofence must not be annotated: %+v", pv)
	}
}

func TestTaskService_ListMyTasks_NoLocationMeansNoAnnotation(t *testing.T) {
	f := newTaskFixture()
	f.create(t, geofenced("fenced", sfCenter, 500, userActor.UserID))

	views, err := f.svc.ListMyTasks(context.Background(), userActor, nil)
	if err != nil {
		t.Fatalf("ListMyTasks failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 task, got %d", len(views))
	}
	if views[0].Proximity != nil {
		t.Errorf("unknown location must not produce a distance, got %+v", views[0].Proximity)
	}
}

func TestTaskService_ListMyTasks_FallsBackToLatestSample(t *testing.T) {
	f := newTaskFixture()
	f.create(t, geofenced("fenced", sfCenter, 500, userActor.UserID))
	f.locator.samples[userActor.UserID] = &domain.LocationSample{UserID: userActor.UserID, Coordinate: sfCenter, RecordedAt: fixedNow}

	views, err := f.svc.ListMyTasks(context.Background(), userActor, nil)
	if err != nil {
		t.Fatalf("ListMyTasks failed: %v", err)
	}
	p := views[0].Proximity
	if p == nil || !p.WithinRadius || p.DistanceMeters != 0 {
		t.Errorf("expected zero distance from stored sample, got %+v", p)
	}
	if views[0].DistanceText != "0m" {
		t.Errorf("expected 0m, got %q", views[0].DistanceText)
	}
}

func TestTaskService_ListMyTasks_LocatorErrorIsNotFatal(t *testing.T) {
	f := newTaskFixture()
	f.create(t, geofenced("fenced", sfCenter, 500, userActor.UserID))
	f.locator.err = errors.New("redis down")

	views, err := f.svc.ListMyTasks(context.Background(), userActor, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if views[0].Proximity != nil {
		t.Errorf("expected no annotation, got %+v", views[0].Proximity)
	}
}

func TestTaskService_ListMyTasks_InvalidCoordinate(t *testing.T) {
	f := newTaskFixture()
	bad := geo.Coordinate{Lat: math.NaN(), Lng: 0}

	if _, err := f.svc.ListMyTasks(context.Background(), userActor, &bad); err != domain.ErrInvalidCoordinate {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestTaskService_ListTasks_PaginationMath(t *testing.T) {
	f := newTaskFixture()
	for i := 0; i < 5; i++ {
		f.svc.now = func() time.Time { return fixedNow.Add(time.Duration(i) * time.Second) }
		f.create(t, ports.CreateTaskInput{Title: "task"})
	}

	res, err := f.svc.ListTasks(context.Background(), ports.ListTasksInput{Page: 1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 5 || res.TotalPages != 3 || len(res.Items) != 2 {
		t.Errorf("unexpected page: total=%d pages=%d items=%d", res.Total, res.TotalPages, len(res.Items))
	}
	if !res.HasNext || res.HasPrev {
		t.Errorf("page 1: expected hasNext only, got next=%v prev=%v", res.HasNext, res.HasPrev)
	}

	last, err := f.svc.ListTasks(context.Background(), ports.ListTasksInput{Page: 3, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(last.Items) != 1 || last.HasNext || !last.HasPrev {
		t.Errorf("page 3: items=%d next=%v prev=%v", len(last.Items), last.HasNext, last.HasPrev)
	}
}

func TestTaskService_ListTasks_Limits(t *testing.T) {
	f := newTaskFixture()

	res, err := f.svc.ListTasks(context.Background(), ports.ListTasksInput{Limit: 999})
	if err != nil {
		t.Fatal(err)
	}
	if res.Limit != 100 || res.Page != 1 {
		t.Errorf("expected limit 100 page 1, got %d/%d", res.Limit, res.Page)
	}

	res, _ = f.svc.ListTasks(context.Background(), ports.ListTasksInput{})
	if res.Limit != 20 {
		t.Errorf("expected default limit 20, got %d", res.Limit)
	}
	if res.TotalPages != 0 || res.HasNext || res.HasPrev {
		t.Errorf("empty result must have no pages: %+v", res)
	}
}

func TestTaskService_ListTasks_Filters(t *testing.T) {
	f := newTaskFixture()
	f.create(t, ports.CreateTaskInput{Title: "Fix the fence", AssigneeIDs: []string{userActor.UserID}})
	f.create(t, ports.CreateTaskInput{Title: "Paint", Description: "the FENCE is blue"})
	f.create(t, ports.CreateTaskInput{Title: "Other"})
	ctx := context.Background()

	res, _ := f.svc.ListTasks(ctx, ports.ListTasksInput{Search: "fence"})
	if res.Total != 2 {
		t.Errorf("search: expected 2, got %d", res.Total)
	}
	res, _ = f.svc.ListTasks(ctx, ports.ListTasksInput{AssigneeID: userActor.UserID})
	if res.Total != 1 {
		t.Errorf("assignee: expected 1, got %d", res.Total)
	}
	res, _ = f.svc.ListTasks(ctx, ports.ListTasksInput{Status: "COMPLETED"})
	if res.Total != 0 {
		t.Errorf("status: expected 0, got %d", res.Total)
	}
	if _, err := f.svc.ListTasks(ctx, ports.ListTasksInput{Status: "DONE"}); !errors.Is(err, domain.ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask for unknown status, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func TestTaskService_Update_ReassignKeepsAcknowledgements(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{userActor.UserID}})
	if _, err := f.svc.AcknowledgeTask(context.Background(), ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor}); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	f.notifier.sent = nil

	title := "renamed"
	updated, err := f.svc.UpdateTask(context.Background(), adminActor, task.ID, ports.UpdateTaskInput{
		Title:       &title,
		AssigneeIDs: []string{userActor.UserID, "user-2"},
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Title != "renamed" || len(updated.Assignees) != 2 {
		t.Fatalf("unexpected task: %+v", updated)
	}
	if a, _ := updated.Assignment(userActor.UserID); a.AcknowledgedAt == nil {
		t.Error("acknowledgement of retained assignee was lost")
	}

	if n := f.notifier.forUser("user-2"); len(n) != 1 || n[0].Type != domain.NotificationTaskAssigned {
		t.Errorf("new assignee should get TASK_ASSIGNED, got %+v", n)
	}
	if n := f.notifier.forUser(userActor.UserID); len(n) != 1 || n[0].Type != domain.NotificationTaskUpdated {
		t.Errorf("existing assignee should get TASK_UPDATED, got %+v", n)
	}
}

func TestTaskService_Update_Geofence(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, geofenced("x", sfCenter, 500))
	ctx := context.Background()

	if _, err := f.svc.UpdateTask(ctx, adminActor, task.ID, ports.UpdateTaskInput{Geofence: &ports.GeofenceInput{Lat: 0, Lng: 0, RadiusM: -1}}); err != domain.ErrInvalidGeofence {
		t.Errorf("expected ErrInvalidGeofence, got %v", err)
	}
	updated, err := f.svc.UpdateTask(ctx, adminActor, task.ID, ports.UpdateTaskInput{RemoveGeofence: true})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Geofence != nil || f.tasks.tasks[task.ID].Geofence != nil {
		t.Error("geofence should be removed")
	}
}

func TestTaskService_Update_ConcurrentChange(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x"})
	f.svc.tasks = &racingTaskRepo{stubTaskRepo: f.tasks}

	title := "y"
	if _, err := f.svc.UpdateTask(context.Background(), adminActor, task.ID, ports.UpdateTaskInput{Title: &title}); err != domain.ErrTaskConflict {
		t.Errorf("expected ErrTaskConflict, got %v", err)
	}
}

// racingTaskRepo bumps updated_at between a read and the following write.
type racingTaskRepo struct {
	*stubTaskRepo
}

func (r *racingTaskRepo) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	t, err := r.stubTaskRepo.FindByID(ctx, id)
	if err == nil {
		r.tasks[id].UpdatedAt = r.tasks[id].UpdatedAt.Add(time.Second)
	}
	return t, err
}

func TestTaskService_Delete(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x"})

	if err := f.svc.DeleteTask(context.Background(), task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := f.svc.DeleteTask(context.Background(), task.ID); err != domain.ErrTaskNotFound {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	types := f.publisher.types()
	if types[len(types)-1] != domain.TaskEventDeleted {
		t.Errorf("expected task.deleted event, got %v", types)
	}
}

func TestTaskService_UpdateStatus(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{userActor.UserID}})
	ctx := context.Background()

	if _, err := f.svc.UpdateStatus(ctx, adminActor, task.ID, "COMPLETED"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("NEW -> COMPLETED must be rejected, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, adminActor, task.ID, "DONE"); !errors.Is(err, domain.ErrInvalidTask) {
		t.Errorf("expected ErrInvalidTask for unknown status, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, userActor, task.ID, "IN_PROGRESS"); err != domain.ErrForbidden {
		t.Errorf("expected ErrForbidden for non-admin, got %v", err)
	}

	updated, err := f.svc.UpdateStatus(ctx, adminActor, task.ID, "IN_PROGRESS")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != domain.TaskInProgress || f.tasks.tasks[task.ID].Status != domain.TaskInProgress {
		t.Errorf("status not updated: %s", updated.Status)
	}
	if n := f.notifier.forUser(userActor.UserID); n[len(n)-1].Type != domain.NotificationTaskUpdated {
		t.Errorf("assignee should be told about the status change")
	}
}

// ---------------------------------------------------------------------------
// AcknowledgeTask
// ---------------------------------------------------------------------------

func TestTaskService_Acknowledge_WithoutGeofence(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{userActor.UserID}})

	res, err := f.svc.AcknowledgeTask(context.Background(), ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor})
	if err != nil {
		t.Fatalf("AcknowledgeTask failed: %v", err)
	}
	if res.Task.Status != domain.TaskInProgress {
		t.Errorf("NEW task should move to IN_PROGRESS, got %s", res.Task.Status)
	}
	if a, _ := res.Task.Assignment(userActor.UserID); a.AcknowledgedAt == nil || !a.AcknowledgedAt.Equal(fixedNow) {
		t.Errorf("acknowledged_at not stamped: %+v", a)
	}
	if res.Proximity != nil {
		t.Errorf("no proximity expected without geofence")
	}
	if n := f.notifier.forUser(adminActor.UserID); len(n) != 1 {
		t.Errorf("creator should be notified, got %d", len(n))
	}

	if _, err := f.svc.AcknowledgeTask(context.Background(), ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor}); err != domain.ErrAlreadyAcknowledged {
		t.Errorf("expected ErrAlreadyAcknowledged, got %v", err)
	}
}

func TestTaskService_Acknowledge_NotAssigned(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{"user-2"}})

	if _, err := f.svc.AcknowledgeTask(context.Background(), ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor}); err != domain.ErrNotAssigned {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}
}

func TestTaskService_Acknowledge_ClosedTask(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, ports.CreateTaskInput{Title: "x", AssigneeIDs: []string{userActor.UserID}})
	f.tasks.tasks[task.ID].Status = domain.TaskCancelled

	if _, err := f.svc.AcknowledgeTask(context.Background(), ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTaskService_Acknowledge_Geofence(t *testing.T) {
	f := newTaskFixture()
	task := f.create(t, geofenced("x", sfCenter, 500, userActor.UserID))
	ctx := context.Background()
	ack := func(loc *geo.Coordinate) (*ports.AcknowledgeResult, error) {
		return f.svc.AcknowledgeTask(ctx, ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor, Location: loc})
	}

	if _, err := ack(nil); err != domain.ErrLocationRequired {
		t.Errorf("expected ErrLocationRequired, got %v", err)
	}

	unknown := geo.Coordinate{Lat: math.NaN(), Lng: -122.4194}
	if _, err := ack(&unknown); err != domain.ErrLocationUnknown {
		t.Errorf("expected ErrLocationUnknown, got %v", err)
	}

	outside := sfNorth1km
	_, err := ack(&outside)
	var oge *domain.OutsideGeofenceError
	if !errors.As(err, &oge) || !errors.Is(err, domain.ErrOutsideGeofence) {
		t.Fatalf("expected OutsideGeofenceError, got %v", err)
	}
	if oge.DistanceMeters <= oge.RadiusMeters || oge.RadiusMeters != 500 {
		t.Errorf("unexpected error payload: %+v", oge)
	}
	if a, _ := f.tasks.tasks[task.ID].Assignment(userActor.UserID); a.AcknowledgedAt != nil {
		t.Fatal("rejected acknowledgement must not be stored")
	}

	inside := geo.Coordinate{Lat: 37.7749 + 0.001, Lng: -122.4194}
	res, err := ack(&inside)
	if err != nil {
		t.Fatalf("expected success inside geofence, got %v", err)
	}
	if res.Proximity == nil || !res.Proximity.WithinRadius {
		t.Errorf("expected proximity within radius, got %+v", res.Proximity)
	}
}

func TestTaskService_Acknowledge_BoundaryIsInside(t *testing.T) {
	f := newTaskFixture()
	point := geo.Coordinate{Lat: 37.7749 + 0.004, Lng: -122.4194}
	radius := geo.Distance(sfCenter, point)
	task := f.create(t, geofenced("x", sfCenter, radius, userActor.UserID))

	if _, err := f.svc.AcknowledgeTask(context.Background(), ports.AcknowledgeInput{TaskID: task.ID, Actor: userActor, Location: &point}); err != nil {
		t.Errorf("a point exactly on the radius is inside, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Stats & MapView
// ---------------------------------------------------------------------------

func TestTaskService_Stats_Scope(t *testing.T) {
	f := newTaskFixture()
	due := fixedNow.Add(-time.Hour)
	f.create(t, ports.CreateTaskInput{Title: "late", DueAt: &due, AssigneeIDs: []string{userActor.UserID}})
	f.create(t, geofenced("fenced", sfCenter, 100))

	stats, err := f.svc.Stats(context.Background(), userActor)
	if err != nil {
		t.Fatal(err)
	}
	if *f.tasks.statsScope != userActor.UserID {
		t.Errorf("user stats should be scoped, got %q", *f.tasks.statsScope)
	}
	if stats.New != 1 || stats.Overdue != 1 || stats.Geofenced != 0 {
		t.Errorf("unexpected user stats: %+v", stats)
	}

	stats, _ = f.svc.Stats(context.Background(), adminActor)
	if *f.tasks.statsScope != "" {
		t.Errorf("admin stats should be global, got %q", *f.tasks.statsScope)
	}
	if stats.New != 2 || stats.Geofenced != 1 {
		t.Errorf("unexpected admin stats: %+v", stats)
	}
}

func TestTaskService_MapView_EmptyFallsBackToDefaultRegion(t *testing.T) {
	f := newTaskFixture()

	view, err := f.svc.MapView(context.Background(), ports.MapViewInput{Actor: userActor})
	if err != nil {
		t.Fatalf("MapView failed: %v", err)
	}
	if !view.Fallback || view.Bounds != DefaultMapRegion {
		t.Errorf("expected default region, got %+v", view)
	}
	if view.Device != nil || len(view.Tasks) != 0 {
		t.Errorf("expected empty view, got %+v", view)
	}
}

func TestTaskService_MapView_FramesTasksAndDevice(t *testing.T) {
	f := newTaskFixture()
	f.create(t, geofenced("a", geo.Coordinate{Lat: 10, Lng: 20}, 100, userActor.UserID))
	f.create(t, geofenced("b", geo.Coordinate{Lat: 11, Lng: 22}, 100, "user-2"))
	closed := f.create(t, geofenced("c", geo.Coordinate{Lat: 50, Lng: 50}, 100, userActor.UserID))
	f.tasks.tasks[closed.ID].Status = domain.TaskCompleted

	device := geo.Coordinate{Lat: 12, Lng: 20}
	view, err := f.svc.MapView(context.Background(), ports.MapViewInput{Actor: userActor, Location: &device})
	if err != nil {
		t.Fatalf("MapView failed: %v", err)
	}
	if view.Fallback || len(view.Tasks) != 1 {
		t.Fatalf("expected one open task framed, got %+v", view)
	}
	// lat 10..12 with the configured 1.5 padding; lng collapses to the minimum span.
	if math.Abs(view.Bounds.CenterLatitude-11) > 1e-9 || math.Abs(view.Bounds.LatitudeSpan-3) > 1e-9 {
		t.Errorf("unexpected latitude framing: %+v", view.Bounds)
	}
	if view.Bounds.LongitudeSpan != geo.MinSpan || view.Bounds.CenterLongitude != 20 {
		t.Errorf("unexpected longitude framing: %+v", view.Bounds)
	}
	if view.Tasks[0].Proximity == nil {
		t.Error("framed task should carry proximity to the device")
	}

	adminView, _ := f.svc.MapView(context.Background(), ports.MapViewInput{Actor: adminActor, Padding: 1})
	if len(adminView.Tasks) != 2 {
		t.Errorf("admin should see every open geofenced task, got %d", len(adminView.Tasks))
	}
	if math.Abs(adminView.Bounds.LongitudeSpan-2) > 1e-9 {
		t.Errorf("explicit padding should apply, got %+v", adminView.Bounds)
	}
}
