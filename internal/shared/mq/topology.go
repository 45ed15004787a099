package mq

import (
	"context"
	"fmt"

	"roadside/internal/shared/logger"
)

const (
	// RequestExchange receives every lifecycle event of a service request.
	RequestExchange = "request_topic"
	// ChangesQueue feeds the change consumer (cache invalidation + ws fan-out).
	ChangesQueue = "request.changes"
	// ChangesBinding matches request.created, request.accepted, ...
	ChangesBinding = "request.*"
)

// Binding describes one queue bound to the request exchange.
type Binding struct {
	Queue      string
	RoutingKey string
}

// Topology returns the bindings declared on startup.
func Topology() []Binding {
	return []Binding{{Queue: ChangesQueue, RoutingKey: ChangesBinding}}
}

// SetupTopology declares request_topic and its queues. Declarations are idempotent.
func SetupTopology(ctx context.Context, mq *RabbitMQ, log *logger.Logger) error {
	ch := mq.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	if err := ch.ExchangeDeclare(
		RequestExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare %s: %w", RequestExchange, err)
	}

	for _, b := range Topology() {
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, RequestExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.Queue, err)
		}
	}

	log.Info(logger.Entry{
		Action:  "topology_setup_complete",
		Message: "request exchange and queues declared",
	})

	return nil
}
