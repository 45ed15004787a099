package in_ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/auth"
	"roadside/internal/shared/logger"
	"roadside/internal/shared/ws"
)

// SnapshotFunc читает текущий список доступных заявок
type SnapshotFunc func(ctx context.Context) ([]*domain.ServiceRequest, error)

// RequestWSHandler обслуживает WebSocket клиентов (user и worker)
type RequestWSHandler struct {
	hub      *ws.Hub
	snapshot SnapshotFunc
	log      *logger.Logger
}

// NewRequestWSHandler создает hub с JWT аутентификацией первым сообщением
func NewRequestWSHandler(jwtSvc *auth.JWTService, snapshot SnapshotFunc, log *logger.Logger, opts ws.Options) *RequestWSHandler {
	authFunc := func(token string) (userID, role string, err error) {
		claims, err := jwtSvc.ValidateToken(token)
		if err != nil {
			return "", "", err
		}
		// seller не участвует в жизненном цикле заявок
		if claims.Role != auth.RoleUser && claims.Role != auth.RoleWorker {
			return "", "", fmt.Errorf("invalid role: %s (expected user or worker)", claims.Role)
		}
		return claims.UserID, claims.Role, nil
	}

	h := &RequestWSHandler{
		hub:      ws.NewHub(authFunc, log, opts),
		snapshot: snapshot,
		log:      log,
	}
	h.hub.SetMessageHandler(h.handleMessage)
	return h
}

// Hub возвращает WebSocket hub
func (h *RequestWSHandler) Hub() *ws.Hub {
	return h.hub
}

// ServeWS обрабатывает GET /ws
func (h *RequestWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

func (h *RequestWSHandler) handleMessage(client *ws.Client, msgType string, data json.RawMessage) error {
	h.log.Debug(logger.Entry{
		Action:  "request_ws_message",
		Message: msgType,
		Additional: map[string]any{
			"user_id": client.UserID,
			"role":    client.Role,
		},
	})

	switch msgType {
	case "ping":
		return send(client, "pong", map[string]string{"status": "ok"})

	case "refresh_available":
		if client.Role != auth.RoleWorker {
			return send(client, "error", map[string]string{"error": "forbidden"})
		}
		if h.snapshot == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := h.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("load available snapshot: %w", err)
		}
		if list == nil {
			list = []*domain.ServiceRequest{}
		}
		return send(client, "available_snapshot", list)

	default:
		h.log.Warn(logger.Entry{
			Action:     "request_ws_unknown_message_type",
			Message:    msgType,
			Additional: map[string]any{"user_id": client.UserID},
		})
	}
	return nil
}

func send(client *ws.Client, msgType string, data any) error {
	b, err := json.Marshal(ws.Envelope{Type: msgType, Data: data})
	if err != nil {
		return err
	}
	if !client.Send(b) {
		return fmt.Errorf("client %s send buffer full", client.ID)
	}
	return nil
}
