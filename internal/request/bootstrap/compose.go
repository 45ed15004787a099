// ============================================================================
// BOOTSTRAP (Compose Root) — dispatch service
// ============================================================================
//
// Здесь создаются все зависимости сервиса заявок и связываются между собой:
//
//   1. ИНФРАСТРУКТУРА: store (postgres | sqlite | memory), RabbitMQ, Redis, JWT
//   2. WEBSOCKET HUB
//   3. OUTBOUND: publisher, notifier, кеш доступных заявок
//   4. USE CASES
//   5. INBOUND: HTTP (gin), /ws, consumer request.changes, poller
//   6. SERVER: запуск и graceful shutdown
//
// Уведомления клиентов идут одним из двух путей:
//   - RabbitMQ включен: use case публикует событие, ChangeConsumer каждого
//     экземпляра сбрасывает кеш и рассылает событие своим WebSocket клиентам;
//   - RabbitMQ выключен: use case сразу отправляет событие в локальный hub.
// Poller работает в обоих случаях.
//
// ============================================================================

package bootstrap

import (
	"context"
	"fmt"
	"time"

	"roadside/internal/request/adapters/in/in_amqp"
	"roadside/internal/request/adapters/in/in_ws"
	"roadside/internal/request/adapters/in/poller"
	"roadside/internal/request/adapters/in/transport"
	"roadside/internal/request/adapters/out/memory"
	"roadside/internal/request/adapters/out/out_amqp"
	"roadside/internal/request/adapters/out/out_cache"
	"roadside/internal/request/adapters/out/out_ws"
	"roadside/internal/request/adapters/out/repo"
	"roadside/internal/request/adapters/out/sqlite"
	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/application/usecase"
	"roadside/internal/request/domain"
	"roadside/internal/shared/auth"
	"roadside/internal/shared/cache"
	"roadside/internal/shared/config"
	"roadside/internal/shared/db"
	"roadside/internal/shared/logger"
	"roadside/internal/shared/mq"
	"roadside/internal/shared/ws"
)

// Store drivers accepted in dispatch.yaml / STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// OpenStore открывает RequestStore по имени драйвера. close освобождает ресурсы.
func OpenStore(ctx context.Context, cfg config.Config, log *logger.Logger) (store out.RequestRepository, closeFn func(), err error) {
	switch cfg.Dispatch.StoreDriver {
	case DriverPostgres, "":
		pool, err := db.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			db.Close(pool, log)
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repo.NewRequestPgRepository(pool, log), func() { db.Close(pool, log) }, nil

	case DriverSQLite:
		r, err := sqlite.Open(ctx, cfg.Dispatch.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil

	case DriverMemory:
		log.Warn(logger.Entry{Action: "memory_store_selected", Message: "requests are not persisted"})
		return memory.NewRequestRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Dispatch.StoreDriver)
}

// openCache возвращает кеш доступных заявок; при недоступном Redis — Passthrough
func openCache(ctx context.Context, cfg config.Config, log *logger.Logger) (out.AvailableCache, func()) {
	if !cfg.Redis.Enabled {
		return out_cache.Passthrough{}, func() {}
	}
	rdb, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn(logger.Entry{
			Action:  "redis_unavailable",
			Message: "available list cache disabled: " + err.Error(),
		})
		return out_cache.Passthrough{}, func() {}
	}
	return out_cache.NewAvailableRedisCache(rdb, cfg.Dispatch.PollInterval, log), rdb.Close
}

// Run запускает dispatch service и блокируется до отмены ctx
func Run(ctx context.Context, cfg config.Config, log *logger.Logger) {
	log.Info(logger.Entry{
		Action:  "dispatch_service_starting",
		Message: "initializing dispatch service",
		Additional: map[string]any{
			"store_driver":  cfg.Dispatch.StoreDriver,
			"rabbitmq":      cfg.RabbitMQ.Enabled,
			"redis":         cfg.Redis.Enabled,
			"poll_interval": cfg.Dispatch.PollInterval.String(),
		},
	})

	// 1. ИНФРАСТРУКТУРА
	store, closeStore, err := OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal(logger.Entry{
			Action:  "store_open_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
	defer closeStore()

	availableCache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	var mqConn *mq.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		mqConn, err = mq.NewRabbitMQ(ctx, cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal(logger.Entry{
				Action:  "rabbitmq_connection_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn, log); err != nil {
			log.Fatal(logger.Entry{
				Action:  "rabbitmq_topology_setup_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
		mqConn.OnReconnect(func(ctx context.Context) error { return mq.SetupTopology(ctx, mqConn, log) })
	}

	jwtService := auth.NewJWTService(cfg.JWT)

	// 2. USE CASES (чтение доступных нужно hub-у для refresh_available)
	deps := usecase.Deps{
		Repo:      store,
		Cache:     availableCache,
		Log:       log,
		ListLimit: cfg.Dispatch.ListLimit,
	}
	listAvailable := usecase.NewListAvailableService(deps)

	// 3. WEBSOCKET HUB
	requestWS := in_ws.NewRequestWSHandler(jwtService, listAvailable.Load, log, ws.Options{AllowedOrigins: cfg.WebSocket.AllowedOrigins})
	wsHub := requestWS.Hub()
	go wsHub.Run(ctx)

	notifier := out_ws.NewWsRequestNotifier(wsHub, log)

	// 4. OUTBOUND для мутаций + consumer изменений
	if mqConn != nil {
		consumer := in_amqp.NewChangeConsumer(mqConn, availableCache, notifier, log)
		routeChanges(ctx, &deps, out_amqp.NewRequestEventPublisher(mqConn, log), consumer, notifier, log)
	} else {
		routeChanges(ctx, &deps, nil, nil, notifier, log)
	}

	uc := transport.UseCases{
		Create:        usecase.NewCreateRequestService(deps),
		Accept:        usecase.NewAcceptRequestService(deps),
		Complete:      usecase.NewCompleteRequestService(deps),
		Cancel:        usecase.NewCancelRequestService(deps),
		Rate:          usecase.NewRateRequestService(deps),
		ListAvailable: listAvailable,
		ListMine:      usecase.NewListMineService(deps),
		Get:           usecase.NewGetRequestService(deps),
	}

	// 5. INBOUND
	workersOnline := func() int { return wsHub.CountByRole(string(domain.RoleWorker)) }
	go poller.New(cfg.Dispatch.PollInterval, listAvailable.Load, notifier, workersOnline, log).Run(ctx)

	httpHandler := transport.NewHTTPHandler(uc, log)
	router := transport.NewRouter(
		transport.RouterConfig{CORSOrigins: cfg.Dispatch.CORSOrigins, WebSocket: requestWS.ServeWS},
		httpHandler,
		transport.JWTMiddleware(jwtService, log),
		log,
	)

	// 6. SERVER
	server := transport.NewServer(cfg.Services.DispatchServicePort, router, log)
	go func() {
		if err := server.Serve(); err != nil {
			log.Fatal(logger.Entry{
				Action:  "http_server_failed",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
		}
	}()

	<-ctx.Done()
	log.Info(logger.Entry{Action: "dispatch_service_stopping", Message: "shutting down dispatch service"})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	log.Info(logger.Entry{Action: "dispatch_service_stopped", Message: "dispatch service stopped"})
}

type changeConsumer interface {
	Start(ctx context.Context) error
}

// routeChanges выбирает путь событий к WebSocket клиентам.
// С RabbitMQ use case только публикует, рассылку делает consumer. Если consumer
// не стартовал, уведомляем локальный hub напрямую, иначе клиенты этого
// инстанса видели бы изменения только через poller.
func routeChanges(ctx context.Context, deps *usecase.Deps, publisher out.EventPublisher, consumer changeConsumer, notifier out.RequestNotifier, log *logger.Logger) {
	if publisher == nil {
		deps.Notifier = notifier
		return
	}
	deps.Publisher = publisher
	if err := consumer.Start(ctx); err != nil {
		log.Error(logger.Entry{
			Action:  "change_consumer_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"fallback": "local websocket notifier",
			},
		})
		deps.Notifier = notifier
	}
}
