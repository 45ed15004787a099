package in_amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"
	"roadside/internal/shared/mq"

	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerTag = "dispatch-service"

// ErrMalformedEvent — сообщение нельзя разобрать; повторная доставка не поможет
var ErrMalformedEvent = errors.New("malformed request event")

// Broker — то, что consumer использует из mq.RabbitMQ
type Broker interface {
	Consume(ctx context.Context, queue, consumer string, handler func(amqp.Delivery)) error
	OnReconnect(fn func(ctx context.Context) error)
}

// ChangeConsumer читает request.changes: сбрасывает кеш доступных заявок и
// пересылает событие WebSocket клиентам. Доставка at-least-once, повторы
// отсекаются по id события.
type ChangeConsumer struct {
	broker   Broker
	cache    out.AvailableCache
	notifier out.RequestNotifier
	log      *logger.Logger
	seen     *recentIDs
}

// NewChangeConsumer создает новый consumer
func NewChangeConsumer(broker Broker, cache out.AvailableCache, notifier out.RequestNotifier, log *logger.Logger) *ChangeConsumer {
	return &ChangeConsumer{
		broker:   broker,
		cache:    cache,
		notifier: notifier,
		log:      log,
		seen:     newRecentIDs(4096),
	}
}

// Start подписывается на очередь и переподписывается после reconnect
func (c *ChangeConsumer) Start(ctx context.Context) error {
	subscribe := func(ctx context.Context) error {
		return c.broker.Consume(ctx, mq.ChangesQueue, consumerTag, func(d amqp.Delivery) {
			c.handleDelivery(ctx, d)
		})
	}
	if err := subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", mq.ChangesQueue, err)
	}
	c.broker.OnReconnect(subscribe)

	c.log.Info(logger.Entry{
		Action:  "change_consumer_started",
		Message: fmt.Sprintf("listening on %s (queue: %s, pattern: %s)", mq.RequestExchange, mq.ChangesQueue, mq.ChangesBinding),
	})
	return nil
}

func (c *ChangeConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := c.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformedEvent):
		c.log.Warn(logger.Entry{
			Action:     "change_event_dropped",
			Message:    err.Error(),
			Additional: map[string]any{"routing_key": d.RoutingKey},
		})
		_ = d.Nack(false, false)
	default:
		c.log.Error(logger.Entry{
			Action:     "handle_change_event_failed",
			Message:    err.Error(),
			Error:      &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{"routing_key": d.RoutingKey, "redelivered": d.Redelivered},
		})
		// одна повторная попытка, дальше сообщение отбрасывается
		_ = d.Nack(false, !d.Redelivered)
	}
}

// Handle processes one encoded RequestEvent.
func (c *ChangeConsumer) Handle(ctx context.Context, body []byte) error {
	var ev domain.RequestEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ID == "" || ev.RequestID == "" || ev.Type == "" {
		return fmt.Errorf("%w: missing id, request_id or type", ErrMalformedEvent)
	}

	if c.seen.Contains(ev.ID) {
		c.log.Debug(logger.Entry{
			Action:           "change_event_duplicate",
			Message:          ev.ID,
			ServiceRequestID: ev.RequestID,
		})
		return nil
	}

	if ev.Type.ChangesAvailableSet() && c.cache != nil {
		if err := c.cache.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidate available cache: %w", err)
		}
	}
	if c.notifier != nil {
		if err := c.notifier.NotifyChange(ctx, ev); err != nil {
			return fmt.Errorf("notify change: %w", err)
		}
	}

	c.seen.Add(ev.ID)
	c.log.Debug(logger.Entry{
		Action:           "change_event_handled",
		Message:          string(ev.Type),
		ServiceRequestID: ev.RequestID,
	})
	return nil
}

// recentIDs — ограниченное множество последних id (кольцо)
type recentIDs struct {
	mu    sync.Mutex
	set   map[string]struct{}
	ring  []string
	next  int
	limit int
}

func newRecentIDs(limit int) *recentIDs {
	return &recentIDs{set: make(map[string]struct{}, limit), ring: make([]string, limit), limit: limit}
}

func (r *recentIDs) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[id]
	return ok
}

func (r *recentIDs) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[id]; ok {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % r.limit
}
