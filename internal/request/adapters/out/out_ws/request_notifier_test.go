package out_ws

import (
	"bytes"
	"context"
	"testing"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	"github.com/sirupsen/logrus"
)

type sent struct {
	target, msgType string
	data            any
}

type fakeHub struct {
	toUser []sent
	toRole []sent
}

func (h *fakeHub) SendTypedToUser(userID, msgType string, data any) error {
	h.toUser = append(h.toUser, sent{userID, msgType, data})
	return nil
}

func (h *fakeHub) SendTypedToRole(role, msgType string, data any) error {
	h.toRole = append(h.toRole, sent{role, msgType, data})
	return nil
}

func newNotifier() (*WsRequestNotifier, *fakeHub) {
	h := &fakeHub{}
	return NewWsRequestNotifier(h, logger.NewWithWriter("test", logrus.InfoLevel, &bytes.Buffer{})), h
}

func strp(s string) *string { return &s }

func TestAcceptNotifiesParticipantsAndWorkers(t *testing.T) {
	n, h := newNotifier()
	r := &domain.ServiceRequest{ID: "r-1", RequesterID: "u-1", WorkerID: strp("w-1"), Status: domain.StatusAccepted}

	if err := n.NotifyChange(context.Background(), domain.NewRequestEvent("e", domain.EventAccepted, r, "w-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if len(h.toUser) != 2 || h.toUser[0].target != "u-1" || h.toUser[1].target != "w-1" {
		t.Fatalf("toUser = %+v", h.toUser)
	}
	if h.toUser[0].msgType != MsgRequestUpdated {
		t.Fatalf("type = %s", h.toUser[0].msgType)
	}
	if len(h.toRole) != 1 || h.toRole[0].target != "worker" || h.toRole[0].msgType != MsgAvailableChanged {
		t.Fatalf("toRole = %+v", h.toRole)
	}
}

func TestCompleteDoesNotTouchAvailableSet(t *testing.T) {
	n, h := newNotifier()
	r := &domain.ServiceRequest{ID: "r-1", RequesterID: "u-1", WorkerID: strp("w-1"), Status: domain.StatusCompleted}

	_ = n.NotifyChange(context.Background(), domain.NewRequestEvent("e", domain.EventCompleted, r, "w-1", time.Now()))
	if len(h.toRole) != 0 {
		t.Fatalf("workers notified on complete: %+v", h.toRole)
	}
}

func TestSnapshotNeverSendsNull(t *testing.T) {
	n, h := newNotifier()
	_ = n.NotifyAvailableSnapshot(context.Background(), nil)
	if len(h.toRole) != 1 {
		t.Fatal("no snapshot sent")
	}
	if list, ok := h.toRole[0].data.([]*domain.ServiceRequest); !ok || list == nil {
		t.Fatalf("data = %#v", h.toRole[0].data)
	}
}
