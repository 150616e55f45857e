package domain

import "time"

// TaskEventType names what happened to a task.
type TaskEventType string

const (
	TaskEventCreated       TaskEventType = "task.created"
	TaskEventAssigned      TaskEventType = "task.assigned"
	TaskEventUpdated       TaskEventType = "task.updated"
	TaskEventStatusChanged TaskEventType = "task.status_changed"
	TaskEventAcknowledged  TaskEventType = "task.acknowledged"
	TaskEventDeleted       TaskEventType = "task.deleted"
)

// TaskEvent is published whenever a task changes.
type TaskEvent struct {
	Type       TaskEventType `json:"type"`
	TaskID     string        `json:"task_id"`
	ActorID    string        `json:"actor_id,omitempty"`
	UserIDs    []string      `json:"user_ids,omitempty"`
	Status     TaskStatus    `json:"status,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
