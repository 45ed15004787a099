package out

import (
	"context"

	"roadside/internal/request/domain"
)

// AvailableLoader reads the pending list from the store.
type AvailableLoader func(ctx context.Context) ([]*domain.ServiceRequest, error)

// AvailableCache кеширует список доступных заявок. Ошибки кеша не должны
// ломать чтение: при любом сбое реализация идет в load напрямую.
type AvailableCache interface {
	GetAvailable(ctx context.Context, load AvailableLoader) ([]*domain.ServiceRequest, error)
	Invalidate(ctx context.Context) error
}
