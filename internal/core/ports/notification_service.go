package ports

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
)

// Notifier is what other use cases need to hand notifications off.
type Notifier interface {
	Notify(ctx context.Context, ns ...*domain.Notification) error
}

// NotificationPage is one page of an actor's notifications.
type NotificationPage struct {
	Items       []*domain.Notification
	Total       int64
	Page        int
	Limit       int
	TotalPages  int
	UnreadCount int64
}

// NotificationService exposes an actor's notifications.
type NotificationService interface {
	Notifier
	List(ctx context.Context, actor domain.Actor, page, limit int) (*NotificationPage, error)
	UnreadCount(ctx context.Context, actor domain.Actor) (int64, error)
	MarkRead(ctx context.Context, actor domain.Actor, id string) error
	MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error)
	SendTest(ctx context.Context, actor domain.Actor) (*domain.Notification, error)
}

// DeviceService manages push tokens for the actor's devices.
type DeviceService interface {
	Register(ctx context.Context, actor domain.Actor, token, platform string) error
	Unregister(ctx context.Context, actor domain.Actor, token string) (bool, error)
	List(ctx context.Context, actor domain.Actor) ([]*domain.DeviceToken, error)
	// Owner resolves the user a device token is registered to.
	Owner(ctx context.Context, token string) (string, error)
}
