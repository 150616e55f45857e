package ports

import (
	"context"
	"time"

	"github.com/geotask/task-service/internal/core/domain"
)

// ListTasksFilter carries all query parameters for listing tasks.
type ListTasksFilter struct {
	Status     string // optional: filter by task status
	Search     string // optional: partial match on title or description
	AssigneeID string // optional: only tasks assigned to this user
	Page       int    // 1-based
	Limit      int    // max rows per page (capped at 100 by service)
}

// TaskStats aggregates task counts by state.
type TaskStats struct {
	New        int64 `json:"new_tasks"`
	InProgress int64 `json:"in_progress_tasks"`
	Completed  int64 `json:"completed_tasks"`
	Cancelled  int64 `json:"cancelled_tasks"`
	Overdue    int64 `json:"overdue_tasks"`
	Geofenced  int64 `json:"geofenced_tasks"`
}

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	Create(ctx context.Context, t *domain.Task) error
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	// Replace overwrites the stored task with t if it was last updated at
	// prevUpdatedAt, else it returns domain.ErrTaskConflict.
	Replace(ctx context.Context, t *domain.Task, prevUpdatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListByAssignee(ctx context.Context, userID string) ([]*domain.Task, error)
	// ListOpenGeofenced returns open tasks with a geofence. When userID is
	// non-empty only tasks assigned to that user are returned.
	ListOpenGeofenced(ctx context.Context, userID string) ([]*domain.Task, error)
	List(ctx context.Context, filter ListTasksFilter) ([]*domain.Task, int64, error)
	// UpdateStatus moves the task from one status to another. It returns
	// domain.ErrInvalidTransition when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.TaskStatus, at time.Time) error
	// Acknowledge stamps the user's assignment. It returns
	// domain.ErrAlreadyAcknowledged when the assignment already carries a stamp.
	Acknowledge(ctx context.Context, id, userID string, at time.Time) error
	// Stats counts tasks; a non-empty assigneeID scopes the counts to that user.
	Stats(ctx context.Context, assigneeID string, now time.Time) (*TaskStats, error)
}
