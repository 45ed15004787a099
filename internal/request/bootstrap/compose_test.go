package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"roadside/internal/request/adapters/out/memory"
	"roadside/internal/request/application/usecase"
	"roadside/internal/request/domain"
	"roadside/internal/request/adapters/out/sqlite"
	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"

	"github.com/sirupsen/logrus"
)

func quiet() *logger.Logger {
	return logger.NewWithWriter("test", logrus.ErrorLevel, &bytes.Buffer{})
}

func TestOpenStoreByDriver(t *testing.T) {
	ctx := context.Background()

	var cfg config.Config
	cfg.Dispatch.StoreDriver = DriverMemory
	store, closeFn, err := OpenStore(ctx, cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	closeFn()
	if _, ok := store.(*memory.RequestRepository); !ok {
		t.Fatalf("memory driver gave %T", store)
	}

	cfg.Dispatch.StoreDriver = DriverSQLite
	cfg.Dispatch.SQLitePath = filepath.Join(t.TempDir(), "dispatch.db")
	store, closeFn, err = OpenStore(ctx, cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := store.(*sqlite.RequestRepository); !ok {
		t.Fatalf("sqlite driver gave %T", store)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	var cfg config.Config
	cfg.Dispatch.StoreDriver = "mongodb"
	if _, _, err := OpenStore(context.Background(), cfg, quiet()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenCacheWithoutRedisIsPassthrough(t *testing.T) {
	var cfg config.Config
	c, closeFn := openCache(context.Background(), cfg, quiet())
	defer closeFn()
	if c == nil {
		t.Fatal("nil cache")
	}
}

type stubPublisher struct{}

func (stubPublisher) PublishRequestEvent(context.Context, domain.RequestEvent) error { return nil }

type stubNotifier struct{}

func (stubNotifier) NotifyChange(context.Context, domain.RequestEvent) error { return nil }

func (stubNotifier) NotifyAvailableSnapshot(context.Context, []*domain.ServiceRequest) error {
	return nil
}

type stubConsumer struct{ err error }

func (c stubConsumer) Start(context.Context) error { return c.err }

func TestRouteChanges(t *testing.T) {
	ctx := context.Background()

	var local usecase.Deps
	routeChanges(ctx, &local, nil, nil, stubNotifier{}, quiet())
	if local.Notifier == nil || local.Publisher != nil {
		t.Fatalf("without rabbitmq: notifier=%v publisher=%v", local.Notifier, local.Publisher)
	}

	var viaBroker usecase.Deps
	routeChanges(ctx, &viaBroker, stubPublisher{}, stubConsumer{}, stubNotifier{}, quiet())
	if viaBroker.Publisher == nil || viaBroker.Notifier != nil {
		t.Fatalf("consumer running: notifier=%v publisher=%v", viaBroker.Notifier, viaBroker.Publisher)
	}

	var fallback usecase.Deps
	routeChanges(ctx, &fallback, stubPublisher{}, stubConsumer{err: errors.New("channel closed")}, stubNotifier{}, quiet())
	if fallback.Publisher == nil || fallback.Notifier == nil {
		t.Fatalf("consumer failed: notifier=%v publisher=%v", fallback.Notifier, fallback.Publisher)
	}
}
