package in

import (
	"context"

	"roadside/internal/request/domain"

	"github.com/shopspring/decimal"
)

// AcceptRequestUseCase — исполнитель берет заявку
type AcceptRequestUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, requestID string) (*domain.ServiceRequest, error)
}

// CompleteRequestInput — цена опциональна
type CompleteRequestInput struct {
	RequestID string
	Price     *decimal.Decimal
}

// CompleteRequestUseCase — назначенный исполнитель завершает заявку
type CompleteRequestUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, input CompleteRequestInput) (*domain.ServiceRequest, error)
}

// CancelRequestUseCase — клиент отменяет заявку
type CancelRequestUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, requestID string) (*domain.ServiceRequest, error)
}

// RateRequestUseCase — клиент оценивает завершенную заявку
type RateRequestUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, requestID string, input domain.RatingInput) (*domain.ServiceRequest, error)
}
