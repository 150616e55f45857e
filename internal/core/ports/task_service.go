package ports

import (
	"context"
	"time"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
)

// GeofenceInput holds a task geofence as submitted by an admin.
type GeofenceInput struct {
	Lat     float64
	Lng     float64
	RadiusM float64
}

// CreateTaskInput carries all data needed to create a new task.
type CreateTaskInput struct {
	Title       string
	Description string
	DueAt       *time.Time
	Geofence    *GeofenceInput
	AssigneeIDs []string
}

// UpdateTaskInput carries task edits; nil fields are left unchanged.
type UpdateTaskInput struct {
	Title          *string
	Description    *string
	DueAt          *time.Time
	Geofence       *GeofenceInput
	RemoveGeofence bool
	AssigneeIDs    []string
}

// TaskView is a task as seen by one actor at one location. Proximity is nil
// when the task has no geofence or no coordinate was available.
type TaskView struct {
	Task         *domain.Task
	Proximity    *geo.ProximityResult
	DistanceText string
}

// ListTasksInput carries all parameters for the admin list endpoint.
type ListTasksInput struct {
	Status     string
	Search     string
	AssigneeID string
	Page       int
	Limit      int
}

// ListTasksResult is returned by ListTasks.
type ListTasksResult struct {
	Items      []*domain.Task
	Total      int64
	Page       int
	Limit      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// AcknowledgeInput identifies who acknowledges which task, and from where.
type AcknowledgeInput struct {
	TaskID   string
	Actor    domain.Actor
	Location *geo.Coordinate
}

// AcknowledgeResult is returned by a successful acknowledgement.
type AcknowledgeResult struct {
	Task           *domain.Task
	AcknowledgedAt time.Time
	Proximity      *geo.ProximityResult
}

// MapViewInput carries the parameters for framing an actor's tasks on a map.
type MapViewInput struct {
	Actor    domain.Actor
	Location *geo.Coordinate
	Padding  float64
}

// MapView frames the geofenced tasks and the device location. Fallback is
// true when there was nothing to frame and the default region was used.
type MapView struct {
	Bounds   geo.MapBounds
	Fallback bool
	Tasks    []TaskView
	Device   *geo.Coordinate
}

// TaskService defines use-case operations for tasks.
type TaskService interface {
	CreateTask(ctx context.Context, actor domain.Actor, input CreateTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, actor domain.Actor, id string, location *geo.Coordinate) (*TaskView, error)
	ListMyTasks(ctx context.Context, actor domain.Actor, location *geo.Coordinate) ([]TaskView, error)
	ListTasks(ctx context.Context, input ListTasksInput) (*ListTasksResult, error)
	UpdateTask(ctx context.Context, actor domain.Actor, id string, input UpdateTaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, actor domain.Actor, id, status string) (*domain.Task, error)
	AcknowledgeTask(ctx context.Context, input AcknowledgeInput) (*AcknowledgeResult, error)
	Stats(ctx context.Context, actor domain.Actor) (*TaskStats, error)
	MapView(ctx context.Context, input MapViewInput) (*MapView, error)
}
