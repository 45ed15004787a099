// ============================================================================
// WEBSOCKET HUB - менеджер WebSocket соединений
// ============================================================================
//
// Клиент подключается на /ws и первым сообщением присылает {"token": "<jwt>"}.
// Без валидного токена в течение authTimeout соединение закрывается.
// После аутентификации хаб знает user_id и роль клиента и умеет отправлять:
//   - конкретному пользователю (SendToUser)
//   - всем клиентам роли (SendToRole), например всем worker
//
//   hub := ws.NewHub(jwtSvc.ExtractUserID, log, ws.Options{})
//   go hub.Run(ctx)
//   hub.SendTypedToRole("worker", "available_changed", payload)
//
// ============================================================================

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"roadside/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	authTimeout    = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 8192
	writeWait      = 10 * time.Second
	sendBuffer     = 256
)

// AuthFunc — валидация JWT: возвращает userID, role
type AuthFunc func(token string) (userID, role string, err error)

// MessageHandler обрабатывает входящие сообщения от клиента
type MessageHandler func(client *Client, messageType string, data json.RawMessage) error

// Options tune the upgrader.
type Options struct {
	// AllowedOrigins; пусто — разрешены все (dev)
	AllowedOrigins []string
}

// Client — одно WebSocket соединение
type Client struct {
	ID     string
	UserID string
	Role   string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *logger.Logger

	// done закрывается при удалении клиента; send не закрывается никогда,
	// т.к. readPump может писать в него параллельно
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:   "ws_" + uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		hub:  h,
		log:  h.log,
	}
}

// Send кладет готовое сообщение в очередь клиента; false если очередь полна
// или клиент уже удален из хаба
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub управляет всеми активными соединениями. Доступ к clients под mu.
type Hub struct {
	clients        map[string]*Client
	mu             sync.RWMutex
	register       chan *Client
	unregister     chan *Client
	authFunc       AuthFunc
	messageHandler MessageHandler
	upgrader       websocket.Upgrader
	log            *logger.Logger
}

// NewHub создает Hub. Не забудьте запустить hub.Run(ctx) в горутине.
func NewHub(authFunc AuthFunc, log *logger.Logger, opts Options) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 10),
		unregister: make(chan *Client, 10),
		authFunc:   authFunc,
		log:        log,
	}
	allowed := map[string]struct{}{}
	for _, o := range opts.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // не браузер
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

// SetMessageHandler устанавливает обработчик входящих сообщений
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.messageHandler = handler
}

// Run — главный цикл хаба
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				c.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.log.Info(logger.Entry{Action: "hub_stopped", Message: "websocket hub stopped"})
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info(logger.Entry{
				Action:  "client_registered",
				Message: client.ID,
				Additional: map[string]any{
					"user_id": client.UserID,
					"role":    client.Role,
				},
			})

		case client := <-h.unregister:
			h.remove(client)
			h.log.Info(logger.Entry{Action: "client_unregistered", Message: client.ID})
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
	}
	h.mu.Unlock()
	client.close()
}

// fanout отправляет message всем клиентам, прошедшим фильтр; медленных отключает
func (h *Hub) fanout(message []byte, match func(*Client) bool) int {
	h.mu.RLock()
	var slow []*Client
	sent := 0
	for _, c := range h.clients {
		if !match(c) {
			continue
		}
		if c.Send(message) {
			sent++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn(logger.Entry{
			Action:     "ws_client_dropped",
			Message:    "send buffer full",
			Additional: map[string]any{"client_id": c.ID, "user_id": c.UserID},
		})
		h.remove(c)
	}
	return sent
}

// SendToUser отправляет сообщение всем соединениям пользователя
func (h *Hub) SendToUser(userID string, message []byte) int {
	return h.fanout(message, func(c *Client) bool { return c.UserID == userID })
}

// SendToRole отправляет сообщение всем пользователям с ролью
func (h *Hub) SendToRole(role string, message []byte) int {
	return h.fanout(message, func(c *Client) bool { return c.Role == role })
}

// CountByRole — число соединений роли
func (h *Hub) CountByRole(role string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.Role == role {
			n++
		}
	}
	return n
}

// Envelope is the wire shape of every server-pushed message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SendTypedToUser marshals {type,data} and delivers it to userID.
func (h *Hub) SendTypedToUser(userID, msgType string, data any) error {
	b, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		return err
	}
	h.SendToUser(userID, b)
	return nil
}

// SendTypedToRole marshals {type,data} and delivers it to every client of role.
func (h *Hub) SendTypedToRole(role, msgType string, data any) error {
	b, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		return err
	}
	h.SendToRole(role, b)
	return nil
}

// ServeWS обрабатывает HTTP запрос на WebSocket соединение
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(logger.Entry{
			Action:  "ws_upgrade_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return
	}

	client := newClient(h, conn, sendBuffer)

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))

	var authMsg struct {
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "auth timeout"))
		_ = conn.Close()
		h.log.Warn(logger.Entry{Action: "ws_auth_failed", Message: "no auth message received"})
		return
	}

	userID, role, err := h.authFunc(authMsg.Token)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": "invalid token"})
		_ = conn.Close()
		h.log.Warn(logger.Entry{
			Action:  "ws_auth_invalid_token",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return
	}

	client.UserID = userID
	client.Role = role

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// подтверждение до регистрации: writePump еще не запущен, гонки записи нет
	if err := conn.WriteJSON(map[string]string{"status": "authenticated", "user_id": userID, "role": role}); err != nil {
		_ = conn.Close()
		return
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn(logger.Entry{
					Action:  "ws_read_error",
					Message: c.ID,
					Error:   &logger.ErrObj{Msg: err.Error()},
				})
			}
			return
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data,omitempty"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.log.Warn(logger.Entry{
				Action:     "ws_parse_message_error",
				Message:    err.Error(),
				Additional: map[string]any{"client_id": c.ID},
			})
			continue
		}

		if c.hub.messageHandler != nil {
			if err := c.hub.messageHandler(c, msg.Type, msg.Data); err != nil {
				c.log.Warn(logger.Entry{
					Action:  "ws_handle_message_error",
					Message: err.Error(),
					Error:   &logger.ErrObj{Msg: err.Error()},
					Additional: map[string]any{
						"client_id": c.ID,
						"msg_type":  msg.Type,
					},
				})
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
