package out_amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"
	"roadside/internal/shared/mq"
)

// RequestEventPublisher публикует события заявок в request_topic
type RequestEventPublisher struct {
	mq  mq.Publisher
	log *logger.Logger
}

// NewRequestEventPublisher создает новый publisher
func NewRequestEventPublisher(pub mq.Publisher, log *logger.Logger) *RequestEventPublisher {
	return &RequestEventPublisher{mq: pub, log: log}
}

// PublishRequestEvent публикует событие; routing key равен типу события
func (p *RequestEventPublisher) PublishRequestEvent(ctx context.Context, ev domain.RequestEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal request event: %w", err)
	}

	routingKey := RoutingKey(ev.Type)
	if err := p.mq.Publish(ctx, mq.RequestExchange, routingKey, payload); err != nil {
		p.log.Error(logger.Entry{
			Action:           "publish_request_event_failed",
			Message:          err.Error(),
			ServiceRequestID: ev.RequestID,
			Error:            &logger.ErrObj{Msg: err.Error()},
			Additional:       map[string]any{"routing_key": routingKey},
		})
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}

	p.log.Debug(logger.Entry{
		Action:           "request_event_published",
		Message:          string(ev.Type),
		ServiceRequestID: ev.RequestID,
		Additional:       map[string]any{"routing_key": routingKey, "event_id": ev.ID},
	})
	return nil
}

// RoutingKey returns the request_topic routing key for an event type.
func RoutingKey(t domain.EventType) string {
	switch t {
	case domain.EventCreated, domain.EventAccepted, domain.EventCompleted, domain.EventCancelled, domain.EventRated:
		return string(t)
	default:
		return "request.event"
	}
}
