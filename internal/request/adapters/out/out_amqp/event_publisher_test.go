package out_amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"
	"roadside/internal/shared/mq"

	"github.com/sirupsen/logrus"
)

type published struct {
	exchange, key string
	body          []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, exchange, key string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange, key, body})
	return nil
}

func testLogger() *logger.Logger {
	return logger.NewWithWriter("test", logrus.DebugLevel, &bytes.Buffer{})
}

func TestPublishUsesEventTypeAsRoutingKey(t *testing.T) {
	fp := &fakePublisher{}
	p := NewRequestEventPublisher(fp, testLogger())

	r := &domain.ServiceRequest{ID: "r-1", RequesterID: "u-1", Status: domain.StatusPending}
	for _, typ := range []domain.EventType{domain.EventCreated, domain.EventAccepted, domain.EventCompleted, domain.EventCancelled, domain.EventRated} {
		if err := p.PublishRequestEvent(context.Background(), domain.NewRequestEvent("e", typ, r, "u-1", time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	if len(fp.msgs) != 5 {
		t.Fatalf("published %d", len(fp.msgs))
	}
	for i, want := range []string{"request.created", "request.accepted", "request.completed", "request.cancelled", "request.rated"} {
		if fp.msgs[i].exchange != mq.RequestExchange || fp.msgs[i].key != want {
			t.Errorf("msg %d = %s/%s", i, fp.msgs[i].exchange, fp.msgs[i].key)
		}
	}

	var ev domain.RequestEvent
	if err := json.Unmarshal(fp.msgs[0].body, &ev); err != nil || ev.RequestID != "r-1" {
		t.Fatalf("body = %s, %v", fp.msgs[0].body, err)
	}
}

func TestPublishFailureIsReturned(t *testing.T) {
	boom := errors.New("channel closed")
	p := NewRequestEventPublisher(&fakePublisher{err: boom}, testLogger())
	r := &domain.ServiceRequest{ID: "r-1"}
	err := p.PublishRequestEvent(context.Background(), domain.NewRequestEvent("e", domain.EventCreated, r, "u", time.Now()))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
