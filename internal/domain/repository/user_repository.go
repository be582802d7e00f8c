package repository

import (
	"context"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
