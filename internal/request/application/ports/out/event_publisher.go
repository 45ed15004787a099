package out

import (
	"context"

	"roadside/internal/request/domain"
)

// EventPublisher публикует события жизненного цикла в RabbitMQ
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, ev domain.RequestEvent) error
}
