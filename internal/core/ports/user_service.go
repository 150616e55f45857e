package ports

import (
	"context"

	"github.com/geotask/task-service/internal/core/domain"
)

// UpdateUserInput carries the mutable user fields; nil means unchanged.
type UpdateUserInput struct {
	Email *string
	Role  *string
}

// UserService defines admin operations on user accounts.
type UserService interface {
	List(ctx context.Context) ([]*domain.User, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.User, error)
	Update(ctx context.Context, actor domain.Actor, id string, input UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
}
