package ports

import (
	"context"
	"time"

	"github.com/geotask/task-service/internal/core/domain"
)

// TokenRevoker tracks logged-out token ids until they would have expired anyway.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthService interface {
	Register(ctx context.Context, email, password, role string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	Me(ctx context.Context, actor domain.Actor) (*domain.User, error)
	// Refresh issues a new token for the actor and revokes the one presented.
	Refresh(ctx context.Context, actor domain.Actor, jti string, expiresAt time.Time) (string, error)
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
}
