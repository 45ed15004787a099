package in

import (
	"context"

	"roadside/internal/request/domain"
)

// CreateRequestOutput — результат создания заявки
type CreateRequestOutput struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
}

// CreateRequestUseCase создает заявку от имени клиента
type CreateRequestUseCase interface {
	Execute(ctx context.Context, actor domain.Actor, input domain.NewRequestInput) (*CreateRequestOutput, error)
}
