package poller

import (
	"context"
	"time"

	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"
)

// LoadFunc читает список доступных заявок (через кеш)
type LoadFunc func(ctx context.Context) ([]*domain.ServiceRequest, error)

// Poller периодически перечитывает доступные заявки и рассылает snapshot
// подключенным worker. Работает независимо от событий RabbitMQ.
type Poller struct {
	interval time.Duration
	load     LoadFunc
	notifier out.RequestNotifier
	// workers возвращает число подключенных worker; nil — всегда рассылать
	workers func() int
	log     *logger.Logger
}

func New(interval time.Duration, load LoadFunc, notifier out.RequestNotifier, workers func() int, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{interval: interval, load: load, notifier: notifier, workers: workers, log: log}
}

// Run блокируется до отмены ctx
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info(logger.Entry{
		Action:     "available_poller_started",
		Message:    "polling available requests",
		Additional: map[string]any{"interval": p.interval.String()},
	})

	for {
		select {
		case <-ctx.Done():
			p.log.Info(logger.Entry{Action: "available_poller_stopped", Message: "context cancelled"})
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick выполняет один цикл опроса
func (p *Poller) Tick(ctx context.Context) {
	if p.workers != nil && p.workers() == 0 {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	list, err := p.load(tickCtx)
	if err != nil {
		p.log.Warn(logger.Entry{
			Action:  "available_poll_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return
	}
	if err := p.notifier.NotifyAvailableSnapshot(tickCtx, list); err != nil {
		p.log.Warn(logger.Entry{
			Action:  "available_snapshot_failed",
			Message: err.Error(),
		})
		return
	}
	p.log.Debug(logger.Entry{
		Action:     "available_snapshot_sent",
		Message:    "snapshot pushed to workers",
		Additional: map[string]any{"count": len(list)},
	})
}
