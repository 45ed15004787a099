package ws

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roadside/internal/shared/logger"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func testAuth(token string) (string, string, error) {
	// token формата "<user>:<role>"
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return "", "", errors.New("bad token")
	}
	return parts[0], parts[1], nil
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	log := logger.NewWithWriter("test", logrus.DebugLevel, &bytes.Buffer{})
	hub := NewHub(testAuth, log, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(map[string]string{"token": token}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	var ack map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack["status"] != "authenticated" {
		t.Fatalf("ack = %v", ack)
	}
	return conn
}

func connected(hub *Hub, userID string) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, c := range hub.clients {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func waitConnected(t *testing.T, hub *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !connected(hub, userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never registered", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendToRoleReachesOnlyThatRole(t *testing.T) {
	hub, url := startHub(t)
	worker := dial(t, url, "w-1:worker")
	user := dial(t, url, "u-1:user")
	waitConnected(t, hub, "w-1")
	waitConnected(t, hub, "u-1")

	if err := hub.SendTypedToRole("worker", "available_changed", map[string]string{"id": "r-1"}); err != nil {
		t.Fatal(err)
	}

	var got Envelope
	_ = worker.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := worker.ReadJSON(&got); err != nil {
		t.Fatalf("worker read: %v", err)
	}
	if got.Type != "available_changed" {
		t.Fatalf("type = %q", got.Type)
	}

	_ = user.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := user.ReadMessage(); err == nil {
		t.Fatal("user received a worker-only message")
	}
}

func TestSendToUser(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url, "u-7:user")
	waitConnected(t, hub, "u-7")

	if n := hub.SendToUser("u-7", []byte(`{"type":"request_updated"}`)); n != 1 {
		t.Fatalf("delivered to %d clients, want 1", n)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil || !strings.Contains(string(msg), "request_updated") {
		t.Fatalf("msg = %s err = %v", msg, err)
	}
	if hub.CountByRole("user") != 1 {
		t.Fatalf("CountByRole = %d", hub.CountByRole("user"))
	}
}

func TestInvalidTokenClosesConnection(t *testing.T) {
	_, url := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"token": "garbage"})

	var resp map[string]string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp["error"] != "invalid token" {
		t.Fatalf("resp = %v", resp)
	}
}

func registerLocal(hub *Hub, userID, role string, buffer int) *Client {
	c := newClient(hub, nil, buffer)
	c.UserID = userID
	c.Role = role
	hub.mu.Lock()
	hub.clients[c.ID] = c
	hub.mu.Unlock()
	return c
}

func TestSendAfterSlowClientDroppedDoesNotPanic(t *testing.T) {
	log := logger.NewWithWriter("test", logrus.DebugLevel, &bytes.Buffer{})
	hub := NewHub(testAuth, log, Options{})
	c := registerLocal(hub, "w-1", "worker", 1)

	if n := hub.SendToRole("worker", []byte("one")); n != 1 {
		t.Fatalf("first send delivered to %d", n)
	}
	if n := hub.SendToRole("worker", []byte("two")); n != 0 {
		t.Fatalf("second send delivered to %d, buffer should be full", n)
	}
	if connected(hub, "w-1") {
		t.Fatal("slow client still registered")
	}

	// ответ из readPump уже после удаления
	if c.Send([]byte("snapshot")) {
		t.Fatal("Send succeeded on a removed client")
	}
	if n := hub.SendToUser("w-1", []byte("again")); n != 0 {
		t.Fatalf("removed client received %d messages", n)
	}
}

func TestSendAfterHubStopDoesNotPanic(t *testing.T) {
	log := logger.NewWithWriter("test", logrus.DebugLevel, &bytes.Buffer{})
	hub := NewHub(testAuth, log, Options{})
	c := registerLocal(hub, "u-1", "user", 4)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if c.Send([]byte("late")) {
		t.Fatal("Send succeeded after hub stopped")
	}
	// повторное удаление безопасно
	hub.remove(c)
}
