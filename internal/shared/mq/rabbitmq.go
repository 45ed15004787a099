package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrChannelUnavailable is returned while the broker connection is down.
var ErrChannelUnavailable = errors.New("rabbitmq channel not available")

// Publisher is the narrow surface adapters publish through.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// RabbitMQ представляет подключение к RabbitMQ с автореконнектом
type RabbitMQ struct {
	url    string
	conn   *amqp.Connection
	ch     *amqp.Channel
	log    *logger.Logger
	mu     sync.RWMutex
	closed bool

	// вызывается после каждого успешного переподключения (topology, consumers)
	onReconnect []func(ctx context.Context) error
}

// RetryPolicy bounds the initial dial loop.
type RetryPolicy struct {
	MaxAttempts int
	FirstDelay  time.Duration
	MaxDelay    time.Duration
}

var defaultRetry = RetryPolicy{MaxAttempts: 10, FirstDelay: time.Second, MaxDelay: 30 * time.Second}

// NewRabbitMQ создает подключение к RabbitMQ с retry
func NewRabbitMQ(ctx context.Context, cfg config.MQConfig, log *logger.Logger) (*RabbitMQ, error) {
	mq := &RabbitMQ{
		url: cfg.AMQPURL(),
		log: log,
	}

	if err := mq.dialWithRetry(ctx, defaultRetry); err != nil {
		return nil, err
	}

	log.Info(logger.Entry{
		Action:  "rabbitmq_connected",
		Message: fmt.Sprintf("connected to %s:%d", cfg.Host, cfg.Port),
	})

	go mq.watch(ctx)
	return mq, nil
}

func (mq *RabbitMQ) dialWithRetry(ctx context.Context, p RetryPolicy) error {
	delay := p.FirstDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if lastErr = mq.connect(); lastErr == nil {
			return nil
		}

		mq.log.Warn(logger.Entry{
			Action:  "rabbitmq_connection_attempt_failed",
			Message: lastErr.Error(),
			Error:   &logger.ErrObj{Msg: lastErr.Error()},
			Additional: map[string]any{
				"attempt":      attempt,
				"max_retries":  p.MaxAttempts,
				"retry_in_sec": delay.Seconds(),
			},
		})

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * 1.5)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", p.MaxAttempts, lastErr)
}

func (mq *RabbitMQ) connect() error {
	conn, err := amqp.Dial(mq.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	mq.mu.Lock()
	mq.conn = conn
	mq.ch = ch
	mq.mu.Unlock()

	return nil
}

// watch redials when the broker drops the connection and replays OnReconnect hooks.
func (mq *RabbitMQ) watch(ctx context.Context) {
	for {
		mq.mu.RLock()
		conn := mq.conn
		mq.mu.RUnlock()
		if conn == nil {
			return
		}

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case amqpErr, ok := <-closeCh:
			mq.mu.Lock()
			if mq.closed {
				mq.mu.Unlock()
				return
			}
			mq.ch = nil
			mq.mu.Unlock()

			msg := "connection closed"
			if ok && amqpErr != nil {
				msg = amqpErr.Error()
			}
			mq.log.Warn(logger.Entry{Action: "rabbitmq_connection_lost", Message: msg})

			if err := mq.dialWithRetry(ctx, defaultRetry); err != nil {
				mq.log.Error(logger.Entry{
					Action:  "rabbitmq_reconnect_failed",
					Message: err.Error(),
					Error:   &logger.ErrObj{Msg: err.Error()},
				})
				return
			}
			mq.log.Info(logger.Entry{Action: "rabbitmq_reconnected", Message: "connection restored"})

			mq.mu.RLock()
			hooks := append([]func(context.Context) error(nil), mq.onReconnect...)
			mq.mu.RUnlock()
			for _, h := range hooks {
				if err := h(ctx); err != nil {
					mq.log.Error(logger.Entry{
						Action:  "rabbitmq_reconnect_hook_failed",
						Message: err.Error(),
						Error:   &logger.ErrObj{Msg: err.Error()},
					})
				}
			}
		}
	}
}

// OnReconnect registers a hook run after the connection is re-established.
func (mq *RabbitMQ) OnReconnect(fn func(ctx context.Context) error) {
	mq.mu.Lock()
	mq.onReconnect = append(mq.onReconnect, fn)
	mq.mu.Unlock()
}

// Channel возвращает активный канал
func (mq *RabbitMQ) Channel() *amqp.Channel {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.ch
}

// Publish публикует persistent JSON сообщение в exchange
func (mq *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch := mq.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := ch.PublishWithContext(
		publishCtx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

// Consume начинает чтение сообщений из очереди; handler сам делает ack/nack
func (mq *RabbitMQ) Consume(ctx context.Context, queue, consumer string, handler func(amqp.Delivery)) error {
	ch := mq.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	msgs, err := ch.Consume(
		queue,
		consumer,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	mq.log.Info(logger.Entry{
		Action:  "consumer_started",
		Message: fmt.Sprintf("consuming from queue: %s", queue),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					mq.log.Info(logger.Entry{Action: "consumer_stopped", Message: queue})
					return
				}
				handler(msg)
			}
		}
	}()

	return nil
}

// Close закрывает подключение к RabbitMQ
func (mq *RabbitMQ) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return
	}
	mq.closed = true

	if mq.ch != nil {
		_ = mq.ch.Close()
	}
	if mq.conn != nil {
		_ = mq.conn.Close()
	}

	mq.log.Info(logger.Entry{Action: "rabbitmq_closed", Message: "connection closed"})
}
