package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
	"github.com/geotask/task-service/internal/core/ports"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// DefaultMapRegion is shown when there is nothing to frame.
var DefaultMapRegion = geo.MapBounds{
	CenterLatitude:  37.78825,
	CenterLongitude: -122.4324,
	LatitudeSpan:    0.0922,
	LongitudeSpan:   0.0421,
}

// TaskServiceConfig holds the map presentation settings.
type TaskServiceConfig struct {
	MapPadding    float64
	DefaultRegion geo.MapBounds
}

type TaskService struct {
	tasks     ports.TaskRepository
	users     ports.UserRepository
	locations LatestLocator
	notifier  ports.Notifier
	publisher ports.EventPublisher
	cfg       TaskServiceConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewTaskService(
	tasks ports.TaskRepository,
	users ports.UserRepository,
	locations LatestLocator,
	notifier ports.Notifier,
	publisher ports.EventPublisher,
	cfg TaskServiceConfig,
	logger zerolog.Logger,
) *TaskService {
	if cfg.DefaultRegion == (geo.MapBounds{}) {
		cfg.DefaultRegion = DefaultMapRegion
	}
	return &TaskService{
		tasks:     tasks,
		users:     users,
		locations: locations,
		notifier:  notifier,
		publisher: publisherOrNop(publisher),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateTask validates and stores a new task, then tells every assignee.
func (s *TaskService) CreateTask(ctx context.Context, actor domain.Actor, input ports.CreateTaskInput) (*domain.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidTask)
	}
	fence, err := buildGeofence(input.Geofence)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	assignees, err := s.resolveAssignees(ctx, input.AssigneeIDs, nil, now)
	if err != nil {
		return nil, err
	}

	task := &domain.Task{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TaskNew,
		DueAt:          utcPtr(input.DueAt),
		Geofence:       fence,
		CreatedBy:      actor.UserID,
		CreatedByEmail: actor.Email,
		Assignees:      assignees,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		s.logger.Error().Err(err).Msg("failed to create task")
		return nil, err
	}

	s.logger.Info().Str("task_id", task.ID).Int("assignees", len(assignees)).Msg("task created")

	ids := assigneeIDs(assignees)
	s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventCreated, TaskID: task.ID, ActorID: actor.UserID, Status: task.Status, OccurredAt: now})
	if len(ids) > 0 {
		s.notifyAssigned(ctx, task, ids)
		s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventAssigned, TaskID: task.ID, ActorID: actor.UserID, UserIDs: ids, Status: task.Status, OccurredAt: now})
	}
	return task, nil
}

// GetTask returns one task. Users only see tasks assigned to them.
func (s *TaskService) GetTask(ctx context.Context, actor domain.Actor, id string, location *geo.Coordinate) (*ports.TaskView, error) {
	task, err := s.visibleTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	coord, err := s.resolveLocation(ctx, actor.UserID, location)
	if err != nil {
		return nil, err
	}
	view := annotate(task, coord)
	return &view, nil
}

// ListMyTasks returns the actor's assigned tasks annotated with proximity.
func (s *TaskService) ListMyTasks(ctx context.Context, actor domain.Actor, location *geo.Coordinate) ([]ports.TaskView, error) {
	coord, err := s.resolveLocation(ctx, actor.UserID, location)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByAssignee(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]ports.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, annotate(t, coord))
	}
	return views, nil
}

// ListTasks returns a paginated, filtered list of every task.
func (s *TaskService) ListTasks(ctx context.Context, input ports.ListTasksInput) (*ports.ListTasksResult, error) {
	if input.Status != "" {
		if _, ok := domain.ParseTaskStatus(input.Status); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTask, input.Status)
		}
	}
	page, limit := normalizePage(input.Page, input.Limit)

	items, total, err := s.tasks.List(ctx, ports.ListTasksFilter{
		Status:     input.Status,
		Search:     strings.TrimSpace(input.Search),
		AssigneeID: input.AssigneeID,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	totalPages := totalPages(total, limit)
	return &ports.ListTasksResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// UpdateTask applies an admin edit. Acknowledgements of retained assignees survive.
func (s *TaskService) UpdateTask(ctx context.Context, actor domain.Actor, id string, input ports.UpdateTaskInput) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prevUpdatedAt := task.UpdatedAt
	now := s.now().UTC()

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidTask)
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = strings.TrimSpace(*input.Description)
	}
	if input.DueAt != nil {
		task.DueAt = utcPtr(input.DueAt)
	}
	switch {
	case input.RemoveGeofence:
		task.Geofence = nil
	case input.Geofence != nil:
		fence, err := buildGeofence(input.Geofence)
		if err != nil {
			return nil, err
		}
		task.Geofence = fence
	}

	var added []string
	if input.AssigneeIDs != nil {
		previous := assigneeIDs(task.Assignees)
		task.Assignees, err = s.resolveAssignees(ctx, input.AssigneeIDs, task.Assignees, now)
		if err != nil {
			return nil, err
		}
		added = without(assigneeIDs(task.Assignees), previous)
	}
	task.UpdatedAt = now

	if err := s.tasks.Replace(ctx, task, prevUpdatedAt); err != nil {
		return nil, err
	}

	s.logger.Info().Str("task_id", id).Str("by", actor.UserID).Msg("task updated")

	if len(added) > 0 {
		s.notifyAssigned(ctx, task, added)
		s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventAssigned, TaskID: id, ActorID: actor.UserID, UserIDs: added, Status: task.Status, OccurredAt: now})
	}
	s.notifyUpdated(ctx, task, without(assigneeIDs(task.Assignees), added), "Task updated", fmt.Sprintf("%q was updated", task.Title))
	s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventUpdated, TaskID: id, ActorID: actor.UserID, Status: task.Status, OccurredAt: now})
	return task, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", id).Msg("task deleted")
	s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventDeleted, TaskID: id, UserIDs: assigneeIDs(task.Assignees), OccurredAt: s.now().UTC()})
	return nil
}

// UpdateStatus moves a task along the status machine.
func (s *TaskService) UpdateStatus(ctx context.Context, actor domain.Actor, id, status string) (*domain.Task, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	next, ok := domain.ParseTaskStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTask, status)
	}
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("update status: %w (from %s to %s)", domain.ErrInvalidTransition, task.Status, next)
	}

	now := s.now().UTC()
	if err := s.tasks.UpdateStatus(ctx, id, task.Status, next, now); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	prev := task.Status
	task.Status = next
	task.UpdatedAt = now

	s.logger.Info().Str("task_id", id).Str("from", string(prev)).Str("to", string(next)).Msg("task status changed")

	s.notifyUpdated(ctx, task, assigneeIDs(task.Assignees), "Task status changed", fmt.Sprintf("%q is now %s", task.Title, next))
	s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventStatusChanged, TaskID: id, ActorID: actor.UserID, Status: next, OccurredAt: now})
	return task, nil
}

// AcknowledgeTask records that an assignee has seen the task. Geofenced
// tasks can only be acknowledged from inside the geofence.
func (s *TaskService) AcknowledgeTask(ctx context.Context, input ports.AcknowledgeInput) (*ports.AcknowledgeResult, error) {
	task, err := s.tasks.FindByID(ctx, input.TaskID)
	if err != nil {
		return nil, err
	}
	assignment, ok := task.Assignment(input.Actor.UserID)
	if !ok {
		return nil, domain.ErrNotAssigned
	}
	if assignment.AcknowledgedAt != nil {
		return nil, domain.ErrAlreadyAcknowledged
	}
	if !task.Status.Open() {
		return nil, fmt.Errorf("acknowledge: %w (task is %s)", domain.ErrInvalidTransition, task.Status)
	}

	var proximity *geo.ProximityResult
	if task.Geofence != nil {
		if input.Location == nil {
			return nil, domain.ErrLocationRequired
		}
		result := geo.Evaluate(*input.Location, task.Geofence.Region(task.ID))
		if result.Unknown() {
			return nil, domain.ErrLocationUnknown
		}
		if !result.WithinRadius {
			return nil, &domain.OutsideGeofenceError{DistanceMeters: result.DistanceMeters, RadiusMeters: task.Geofence.RadiusMeters}
		}
		proximity = &result
	}

	now := s.now().UTC()
	if err := s.tasks.Acknowledge(ctx, task.ID, input.Actor.UserID, now); err != nil {
		return nil, err
	}
	if task.Status == domain.TaskNew {
		err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskNew, domain.TaskInProgress, now)
		// Another writer already moved it on; the acknowledgement stands.
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("acknowledge: %w", err)
		}
	}

	updated, err := s.tasks.FindByID(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("task_id", task.ID).Str("user_id", input.Actor.UserID).Msg("task acknowledged")

	if task.CreatedBy != "" && task.CreatedBy != input.Actor.UserID {
		s.notifyUpdated(ctx, updated, []string{task.CreatedBy}, "Task acknowledged", fmt.Sprintf("%s acknowledged %q", input.Actor.Email, task.Title))
	}
	s.publish(ctx, domain.TaskEvent{Type: domain.TaskEventAcknowledged, TaskID: task.ID, ActorID: input.Actor.UserID, Status: updated.Status, OccurredAt: now})

	return &ports.AcknowledgeResult{Task: updated, AcknowledgedAt: now, Proximity: proximity}, nil
}

// Stats counts every task for admins and only assigned tasks for users.
func (s *TaskService) Stats(ctx context.Context, actor domain.Actor) (*ports.TaskStats, error) {
	scope := actor.UserID
	if actor.IsAdmin() {
		scope = ""
	}
	return s.tasks.Stats(ctx, scope, s.now().UTC())
}

// MapView frames the open geofenced tasks visible to the actor together with
// the device position.
func (s *TaskService) MapView(ctx context.Context, input ports.MapViewInput) (*ports.MapView, error) {
	coord, err := s.resolveLocation(ctx, input.Actor.UserID, input.Location)
	if err != nil {
		return nil, err
	}
	scope := input.Actor.UserID
	if input.Actor.IsAdmin() {
		scope = ""
	}
	tasks, err := s.tasks.ListOpenGeofenced(ctx, scope)
	if err != nil {
		return nil, err
	}

	points := make([]geo.Coordinate, 0, len(tasks)+1)
	views := make([]ports.TaskView, 0, len(tasks))
	for _, t := range tasks {
		if t.Geofence == nil {
			continue
		}
		points = append(points, t.Geofence.Center)
		views = append(views, annotate(t, coord))
	}
	if coord != nil {
		points = append(points, *coord)
	}

	padding := input.Padding
	if padding <= 0 {
		padding = s.cfg.MapPadding
	}

	view := &ports.MapView{Tasks: views, Device: coord}
	bounds, err := geo.ComputeBounds(points, padding)
	switch {
	case errors.Is(err, geo.ErrEmptyInput):
		view.Bounds = s.cfg.DefaultRegion
		view.Fallback = true
	case err != nil:
		return nil, err
	default:
		view.Bounds = bounds
	}
	return view, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *TaskService) visibleTask(ctx context.Context, actor domain.Actor, id string) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return task, nil
	}
	if _, ok := task.Assignment(actor.UserID); !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// resolveLocation prefers the supplied coordinate and falls back to the
// user's latest fresh sample. A nil result means the position is unknown.
func (s *TaskService) resolveLocation(ctx context.Context, userID string, location *geo.Coordinate) (*geo.Coordinate, error) {
	if location != nil {
		if !location.Valid() {
			return nil, domain.ErrInvalidCoordinate
		}
		return location, nil
	}
	if s.locations == nil {
		return nil, nil
	}
	sample, err := s.locations.Latest(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoLocation) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("latest location lookup failed")
		}
		return nil, nil
	}
	return &sample.Coordinate, nil
}

// resolveAssignees builds the assignment list for ids, keeping existing
// assignments (and their acknowledgements) for users already assigned.
func (s *TaskService) resolveAssignees(ctx context.Context, ids []string, existing []domain.Assignment, now time.Time) ([]domain.Assignment, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []domain.Assignment{}, nil
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	kept := make(map[string]domain.Assignment, len(existing))
	for _, a := range existing {
		kept[a.UserID] = a
	}

	out := make([]domain.Assignment, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: assignee %s does not exist", domain.ErrInvalidTask, id)
		}
		if a, ok := kept[id]; ok {
			a.Email = u.Email
			out = append(out, a)
			continue
		}
		out = append(out, domain.Assignment{UserID: id, Email: u.Email, AssignedAt: now})
	}
	return out, nil
}

func (s *TaskService) notifyAssigned(ctx context.Context, task *domain.Task, userIDs []string) {
	body := fmt.Sprintf("You have been assigned %q", task.Title)
	s.notify(ctx, task, userIDs, domain.NotificationTaskAssigned, "New task assigned", body)
}

func (s *TaskService) notifyUpdated(ctx context.Context, task *domain.Task, userIDs []string, title, body string) {
	s.notify(ctx, task, userIDs, domain.NotificationTaskUpdated, title, body)
}

// notify is best effort: the task change has already been committed.
func (s *TaskService) notify(ctx context.Context, task *domain.Task, userIDs []string, typ domain.NotificationType, title, body string) {
	if s.notifier == nil || len(userIDs) == 0 {
		return
	}
	now := s.now().UTC()
	ns := make([]*domain.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		ns = append(ns, &domain.Notification{
			ID:        uuid.NewString(),
			UserID:    uid,
			Type:      typ,
			Title:     title,
			Body:      body,
			TaskID:    task.ID,
			Data:      map[string]string{"task_id": task.ID, "status": string(task.Status)},
			CreatedAt: now,
		})
	}
	if err := s.notifier.Notify(ctx, ns...); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Str("type", string(typ)).Msg("failed to write notifications")
	}
}

func (s *TaskService) publish(ctx context.Context, event domain.TaskEvent) {
	if err := s.publisher.PublishTaskEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("task_id", event.TaskID).Str("type", string(event.Type)).Msg("failed to publish task event")
	}
}

// annotate attaches proximity to geofenced tasks when a coordinate is known.
func annotate(task *domain.Task, coord *geo.Coordinate) ports.TaskView {
	view := ports.TaskView{Task: task}
	if task.Geofence == nil || coord == nil {
		return view
	}
	result := geo.Evaluate(*coord, task.Geofence.Region(task.ID))
	if result.Unknown() {
		return view
	}
	view.Proximity = &result
	view.DistanceText = geo.FormatDistance(result.DistanceMeters)
	return view
}

func buildGeofence(in *ports.GeofenceInput) (*domain.TaskGeofence, error) {
	if in == nil {
		return nil, nil
	}
	fence := &domain.TaskGeofence{
		Center:       geo.Coordinate{Lat: in.Lat, Lng: in.Lng},
		RadiusMeters: in.RadiusM,
	}
	if !fence.Valid() {
		return nil, domain.ErrInvalidGeofence
	}
	return fence, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func totalPages(total int64, limit int) int {
	if total == 0 || limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func assigneeIDs(as []domain.Assignment) []string {
	ids := make([]string, 0, len(as))
	for _, a := range as {
		ids = append(ids, a.UserID)
	}
	return ids
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// without returns ids minus anything in remove.
func without(ids, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
