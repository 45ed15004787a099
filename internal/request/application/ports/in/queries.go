package in

import (
	"context"

	"roadside/internal/request/domain"
)

// ListAvailableUseCase — список pending для исполнителей
type ListAvailableUseCase interface {
	Execute(ctx context.Context, actor domain.Actor) ([]*domain.ServiceRequest, error)
}

// ListMineUseCase — заявки клиента или исполнителя с фильтром по статусам
type ListMineUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, statuses []domain.Status) ([]*domain.ServiceRequest, error)
}

// GetRequestUseCase — одна заявка, если актору разрешено ее видеть
type GetRequestUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, requestID string) (*domain.ServiceRequest, error)
}
