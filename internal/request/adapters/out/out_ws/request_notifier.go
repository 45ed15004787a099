package out_ws

import (
	"context"

	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"
)

// Типы сообщений, которые получают клиенты
const (
	MsgRequestUpdated    = "request_updated"
	MsgAvailableChanged  = "available_changed"
	MsgAvailableSnapshot = "available_snapshot"
)

// Hub — то, что notifier использует из ws.Hub
type Hub interface {
	SendTypedToUser(userID, msgType string, data any) error
	SendTypedToRole(role, msgType string, data any) error
}

// WsRequestNotifier отправляет изменения заявок через WebSocket
type WsRequestNotifier struct {
	hub Hub
	log *logger.Logger
}

// NewWsRequestNotifier создает новый notifier
func NewWsRequestNotifier(hub Hub, log *logger.Logger) *WsRequestNotifier {
	return &WsRequestNotifier{hub: hub, log: log}
}

// AvailableChange is the payload of available_changed.
type AvailableChange struct {
	EventType domain.EventType `json:"event_type"`
	RequestID string           `json:"request_id"`
	Status    domain.Status    `json:"status"`
}

// NotifyChange шлет request_updated автору и исполнителям заявки,
// а при изменении набора доступных — available_changed всем worker.
func (n *WsRequestNotifier) NotifyChange(ctx context.Context, ev domain.RequestEvent) error {
	var firstErr error
	for _, userID := range ev.Recipients() {
		if err := n.hub.SendTypedToUser(userID, MsgRequestUpdated, ev); err != nil {
			n.logFailure("notify_participant_failed", ev.RequestID, err, map[string]any{"user_id": userID})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if ev.Type.ChangesAvailableSet() {
		change := AvailableChange{EventType: ev.Type, RequestID: ev.RequestID, Status: ev.Status}
		if err := n.hub.SendTypedToRole(string(domain.RoleWorker), MsgAvailableChanged, change); err != nil {
			n.logFailure("notify_workers_failed", ev.RequestID, err, nil)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	n.log.Debug(logger.Entry{
		Action:           "request_change_notified",
		Message:          string(ev.Type),
		ServiceRequestID: ev.RequestID,
	})
	return firstErr
}

// NotifyAvailableSnapshot шлет весь список доступных заявок всем worker
func (n *WsRequestNotifier) NotifyAvailableSnapshot(ctx context.Context, available []*domain.ServiceRequest) error {
	if available == nil {
		available = []*domain.ServiceRequest{}
	}
	if err := n.hub.SendTypedToRole(string(domain.RoleWorker), MsgAvailableSnapshot, available); err != nil {
		n.logFailure("notify_available_snapshot_failed", "", err, nil)
		return err
	}
	return nil
}

func (n *WsRequestNotifier) logFailure(action, requestID string, err error, extra map[string]any) {
	n.log.Error(logger.Entry{
		Action:           action,
		Message:          err.Error(),
		ServiceRequestID: requestID,
		Error:            &logger.ErrObj{Msg: err.Error()},
		Additional:       extra,
	})
}
