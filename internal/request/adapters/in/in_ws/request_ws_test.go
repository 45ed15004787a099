package in_ws

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roadside/internal/request/domain"
	"roadside/internal/shared/auth"
	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"
	"roadside/internal/shared/ws"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type envelope struct {
	Type string                   `json:"type"`
	Data []map[string]interface{} `json:"data"`
}

func setup(t *testing.T) (*auth.JWTService, string) {
	t.Helper()
	jwtSvc := auth.NewJWTService(config.JWTConfig{Secret: "ws-secret", ExpiryMinutes: 5})
	log := logger.NewWithWriter("test", logrus.ErrorLevel, &bytes.Buffer{})

	snapshot := func(context.Context) ([]*domain.ServiceRequest, error) {
		return []*domain.ServiceRequest{{ID: "r-1", Status: domain.StatusPending}}, nil
	}
	h := NewRequestWSHandler(jwtSvc, snapshot, log, ws.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Hub().Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	return jwtSvc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url, token string) (*websocket.Conn, map[string]string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(map[string]string{"token": token}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]string
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatal(err)
	}
	return conn, ack
}

func TestWorkerCanRefreshAvailable(t *testing.T) {
	jwtSvc, url := setup(t)
	tok, _ := jwtSvc.GenerateToken("w-1", "w1@example.com", "worker")

	conn, ack := connect(t, url, tok)
	if ack["status"] != "authenticated" || ack["role"] != "worker" {
		t.Fatalf("ack = %v", ack)
	}

	if err := conn.WriteJSON(map[string]string{"type": "refresh_available"}); err != nil {
		t.Fatal(err)
	}
	var msg envelope
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "available_snapshot" || len(msg.Data) != 1 || msg.Data[0]["id"] != "r-1" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestPingPong(t *testing.T) {
	jwtSvc, url := setup(t)
	tok, _ := jwtSvc.GenerateToken("u-1", "u1@example.com", "user")
	conn, _ := connect(t, url, tok)

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	var msg map[string]any
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "pong" {
		t.Fatalf("msg = %v", msg)
	}
}

func TestSellerIsRejected(t *testing.T) {
	jwtSvc, url := setup(t)
	tok, _ := jwtSvc.GenerateToken("s-1", "s1@example.com", "seller")
	_, ack := connect(t, url, tok)
	if ack["error"] != "invalid token" {
		t.Fatalf("ack = %v", ack)
	}
}
