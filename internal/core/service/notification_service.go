package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

type NotificationService struct {
	repo   ports.NotificationRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewNotificationService(repo ports.NotificationRepository, logger zerolog.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger, now: time.Now}
}

// Notify stores notifications produced by other use cases.
func (s *NotificationService) Notify(ctx context.Context, ns ...*domain.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	now := s.now().UTC()
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
	}
	if err := s.repo.CreateMany(ctx, ns); err != nil {
		return err
	}
	s.logger.Debug().Int("count", len(ns)).Str("type", string(ns[0].Type)).Msg("notifications stored")
	return nil
}

func (s *NotificationService) List(ctx context.Context, actor domain.Actor, page, limit int) (*ports.NotificationPage, error) {
	page, limit = normalizePage(page, limit)
	items, total, err := s.repo.ListByUser(ctx, actor.UserID, page, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return &ports.NotificationPage{
		Items:       items,
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages(total, limit),
		UnreadCount: unread,
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor) (int64, error) {
	return s.repo.CountUnread(ctx, actor.UserID)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	return s.repo.MarkRead(ctx, id, actor.UserID, s.now().UTC())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error) {
	return s.repo.MarkAllRead(ctx, actor.UserID, s.now().UTC())
}

// SendTest writes a TEST notification to the actor's own inbox.
func (s *NotificationService) SendTest(ctx context.Context, actor domain.Actor) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Type:      domain.NotificationTest,
		Title:     "Test notification",
		Body:      "Notifications are working.",
		CreatedAt: s.now().UTC(),
	}
	if err := s.Notify(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}
