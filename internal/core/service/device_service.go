package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

type DeviceService struct {
	repo   ports.DeviceRepository
	logger zerolog.Logger
	now    func() time.Time
}

func NewDeviceService(repo ports.DeviceRepository, logger zerolog.Logger) *DeviceService {
	return &DeviceService{repo: repo, logger: logger, now: time.Now}
}

// Register upserts a push token. A token moves to whichever user registered it last.
func (s *DeviceService) Register(ctx context.Context, actor domain.Actor, token, platform string) error {
	token = strings.TrimSpace(token)
	platform = strings.ToLower(strings.TrimSpace(platform))
	switch platform {
	case domain.PlatformIOS, domain.PlatformAndroid, domain.PlatformWeb:
	default:
		return domain.ErrInvalidDevice
	}
	if token == "" {
		return domain.ErrInvalidDevice
	}
	now := s.now().UTC()
	err := s.repo.Upsert(ctx, &domain.DeviceToken{
		Token:     token,
		UserID:    actor.UserID,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("user_id", actor.UserID).Str("platform", platform).Msg("device registered")
	return nil
}

func (s *DeviceService) Unregister(ctx context.Context, actor domain.Actor, token string) (bool, error) {
	return s.repo.Delete(ctx, strings.TrimSpace(token), actor.UserID)
}

func (s *DeviceService) List(ctx context.Context, actor domain.Actor) ([]*domain.DeviceToken, error) {
	return s.repo.ListByUser(ctx, actor.UserID)
}

func (s *DeviceService) Owner(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrDeviceNotFound
	}
	d, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return "", err
	}
	return d.UserID, nil
}
