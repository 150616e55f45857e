package domain

import (
	"errors"
	"time"
)

// NotificationType classifies notifications for the client.
type NotificationType string

const (
	NotificationTaskAssigned  NotificationType = "TASK_ASSIGNED"
	NotificationTaskUpdated   NotificationType = "TASK_UPDATED"
	NotificationGeofenceAlert NotificationType = "GEOFENCE_ALERT"
	NotificationTest          NotificationType = "TEST"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is an in-app message for one user.
type Notification struct {
	ID        string            `json:"id" bson:"_id"`
	UserID    string            `json:"user_id" bson:"user_id"`
	Type      NotificationType  `json:"type" bson:"type"`
	Title     string            `json:"title" bson:"title"`
	Body      string            `json:"body" bson:"body"`
	Data      map[string]string `json:"data,omitempty" bson:"data,omitempty"`
	TaskID    string            `json:"task_id,omitempty" bson:"task_id,omitempty"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	ReadAt    *time.Time        `json:"read_at,omitempty" bson:"read_at,omitempty"`
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Platforms accepted for device tokens.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

var (
	ErrDeviceNotFound = errors.New("device token not found")
	ErrInvalidDevice  = errors.New("invalid device token or platform")
)

// DeviceToken is a push token registered by a user's device.
type DeviceToken struct {
	Token     string    `json:"token" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Platform  string    `json:"platform" bson:"platform"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
