package poller

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	"github.com/sirupsen/logrus"
)

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]*domain.ServiceRequest
}

func (s *snapshotRecorder) NotifyChange(context.Context, domain.RequestEvent) error { return nil }

func (s *snapshotRecorder) NotifyAvailableSnapshot(_ context.Context, list []*domain.ServiceRequest) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, list)
	s.mu.Unlock()
	return nil
}

func (s *snapshotRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func quiet() *logger.Logger {
	return logger.NewWithWriter("test", logrus.ErrorLevel, &bytes.Buffer{})
}

func pending(context.Context) ([]*domain.ServiceRequest, error) {
	return []*domain.ServiceRequest{{ID: "r-1", Status: domain.StatusPending}}, nil
}

func TestTickPushesSnapshot(t *testing.T) {
	rec := &snapshotRecorder{}
	p := New(time.Second, pending, rec, func() int { return 2 }, quiet())

	p.Tick(context.Background())
	if rec.count() != 1 || rec.snapshots[0][0].ID != "r-1" {
		t.Fatalf("snapshots = %v", rec.snapshots)
	}
}

func TestTickSkipsWithoutWorkers(t *testing.T) {
	rec := &snapshotRecorder{}
	loads := 0
	load := func(ctx context.Context) ([]*domain.ServiceRequest, error) {
		loads++
		return pending(ctx)
	}
	p := New(time.Second, load, rec, func() int { return 0 }, quiet())

	p.Tick(context.Background())
	if loads != 0 || rec.count() != 0 {
		t.Fatalf("loads=%d snapshots=%d", loads, rec.count())
	}
}

func TestTickSwallowsLoadError(t *testing.T) {
	rec := &snapshotRecorder{}
	load := func(context.Context) ([]*domain.ServiceRequest, error) {
		return nil, &domain.TransportError{Op: "list_available", Err: errors.New("down")}
	}
	p := New(time.Second, load, rec, nil, quiet())

	p.Tick(context.Background())
	if rec.count() != 0 {
		t.Fatal("snapshot sent after failed load")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := &snapshotRecorder{}
	p := New(5*time.Millisecond, pending, rec, nil, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poller never ticked twice")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
