package out

import (
	"context"
	"time"

	"roadside/internal/request/domain"

	"github.com/shopspring/decimal"
)

// RequestRepository — хранилище заявок. Все переходы выполняются одной условной
// записью; ноль затронутых строк возвращается как *domain.ConflictError.
type RequestRepository interface {
	// Create вставляет заявку в статусе pending
	Create(ctx context.Context, r *domain.ServiceRequest) error

	// FindByID возвращает заявку или domain.ErrRequestNotFound
	FindByID(ctx context.Context, id string) (*domain.ServiceRequest, error)

	// ListAvailable — pending, новые первыми
	ListAvailable(ctx context.Context, limit int) ([]*domain.ServiceRequest, error)

	// ListForRequester — заявки клиента; пустой statuses = все
	ListForRequester(ctx context.Context, requesterID string, statuses []domain.Status) ([]*domain.ServiceRequest, error)

	// ListForWorker — заявки, назначенные исполнителю
	ListForWorker(ctx context.Context, workerID string, statuses []domain.Status) ([]*domain.ServiceRequest, error)

	// Accept: pending → accepted, привязывает workerID
	Accept(ctx context.Context, id, workerID string, now time.Time) (*domain.ServiceRequest, error)

	// Complete: accepted → completed, только назначенным исполнителем
	Complete(ctx context.Context, id, workerID string, price *decimal.Decimal, now time.Time) (*domain.ServiceRequest, error)

	// Cancel: pending|accepted → cancelled, только автором заявки
	Cancel(ctx context.Context, id, requesterID string, now time.Time) (*domain.Cancellation, error)

	// Rate: один раз на завершенную заявку, только автором
	Rate(ctx context.Context, id, requesterID string, rating int, review *string, now time.Time) (*domain.ServiceRequest, error)
}
