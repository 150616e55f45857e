package domain

import (
	"errors"
	"time"

	"github.com/geotask/task-service/internal/core/geo"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskNew        TaskStatus = "NEW"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// validTransitions defines the allowed state machine transitions.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskNew:        {TaskInProgress, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskCancelled},
}

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidTask         = errors.New("invalid task")
	ErrNotAssigned         = errors.New("task is not assigned to user")
	ErrAlreadyAcknowledged = errors.New("task already acknowledged")
	ErrLocationRequired    = errors.New("location required to acknowledge geofenced task")
	ErrLocationUnknown     = errors.New("location unknown")
	ErrOutsideGeofence     = errors.New("outside task geofence")
	ErrTaskConflict        = errors.New("task was modified concurrently")
)

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open reports whether work on the task can still happen.
func (s TaskStatus) Open() bool {
	return s == TaskNew || s == TaskInProgress
}

// ParseTaskStatus validates a raw status string.
func ParseTaskStatus(raw string) (TaskStatus, bool) {
	switch s := TaskStatus(raw); s {
	case TaskNew, TaskInProgress, TaskCompleted, TaskCancelled:
		return s, true
	}
	return "", false
}

// TaskGeofence is the circular area a task must be acknowledged from.
type TaskGeofence struct {
	Center       geo.Coordinate `json:"center" bson:"center"`
	RadiusMeters float64        `json:"radius_m" bson:"radius_m"`
}

// Valid reports whether the geofence can be evaluated.
func (g TaskGeofence) Valid() bool {
	return g.Center.Valid() && g.RadiusMeters > 0
}

// Region exposes the geofence to the proximity engine.
func (g TaskGeofence) Region(taskID string) geo.GeofenceRegion {
	return geo.GeofenceRegion{
		Identifier:    TaskRegionIdentifier(taskID),
		Center:        g.Center,
		RadiusMeters:  g.RadiusMeters,
		NotifyOnEnter: true,
	}
}

// TaskRegionIdentifier names the implicit region attached to a task.
func TaskRegionIdentifier(taskID string) string {
	return "task_" + taskID + "_geofence"
}

// Assignment links a user to a task.
type Assignment struct {
	UserID         string     `json:"user_id" bson:"user_id"`
	Email          string     `json:"email" bson:"email"`
	AssignedAt     time.Time  `json:"assigned_at" bson:"assigned_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" bson:"acknowledged_at,omitempty"`
}

// Task is the core aggregate root.
type Task struct {
	ID             string        `json:"id" bson:"_id"`
	Title          string        `json:"title" bson:"title"`
	Description    string        `json:"description,omitempty" bson:"description,omitempty"`
	Status         TaskStatus    `json:"status" bson:"status"`
	DueAt          *time.Time    `json:"due_at,omitempty" bson:"due_at,omitempty"`
	Geofence       *TaskGeofence `json:"geofence,omitempty" bson:"geofence,omitempty"`
	CreatedBy      string        `json:"created_by" bson:"created_by"`
	CreatedByEmail string        `json:"created_by_email" bson:"created_by_email"`
	Assignees      []Assignment  `json:"assignees" bson:"assignees"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at"`
}

// Assignment returns the assignment for userID, if any.
func (t *Task) Assignment(userID string) (*Assignment, bool) {
	for i := range t.Assignees {
		if t.Assignees[i].UserID == userID {
			return &t.Assignees[i], true
		}
	}
	return nil, false
}

// Overdue reports whether an open task has passed its due date.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueAt != nil && t.Status.Open() && now.After(*t.DueAt)
}

// OutsideGeofenceError carries how far the actor was from the task geofence.
type OutsideGeofenceError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutsideGeofenceError) Error() string {
	return ErrOutsideGeofence.Error() + ": " + geo.FormatDistance(e.DistanceMeters) + " away, radius " + geo.FormatDistance(e.RadiusMeters)
}

func (e *OutsideGeofenceError) Unwrap() error {
	return ErrOutsideGeofence
}
