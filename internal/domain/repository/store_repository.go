package repository

import (
	"context"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
)

type StoreRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Store, error)
}
