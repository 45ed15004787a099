package out

import (
	"context"

	"roadside/internal/request/domain"
)

// RequestNotifier доставляет изменения подключенным WebSocket клиентам
type RequestNotifier interface {
	// NotifyChange шлет request_updated участникам и available_changed исполнителям
	NotifyChange(ctx context.Context, ev domain.RequestEvent) error

	// NotifyAvailableSnapshot шлет текущий список доступных заявок всем исполнителям
	NotifyAvailableSnapshot(ctx context.Context, available []*domain.ServiceRequest) error
}
