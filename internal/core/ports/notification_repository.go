package ports

import (
	"context"
	"time"

	"github.com/geotask/task-service/internal/core/domain"
)

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	CreateMany(ctx context.Context, ns []*domain.Notification) error
	ListByUser(ctx context.Context, userID string, page, limit int) ([]*domain.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// DeviceRepository persists push tokens.
type DeviceRepository interface {
	Upsert(ctx context.Context, d *domain.DeviceToken) error
	Delete(ctx context.Context, token, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.DeviceToken, error)
	FindByToken(ctx context.Context, token string) (*domain.DeviceToken, error)
}
