package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	msgJoinUserRoom  = "join-user-room"
	msgJoinAdminRoom = "join-admin-room"
	msgLeave         = "leave"
)

// Conn is the subset of *websocket.Conn used by a session.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SessionConfig tunes the connection pumps.
type SessionConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return c
}

// controlMessage is a client request.
type controlMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Room   string `json:"room,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

// Serve pumps frames between conn and the hub until either side closes. It
// blocks until the connection is gone.
func (h *Hub) Serve(ctx context.Context, conn Conn, c *Client, cfg SessionConfig) {
	cfg = cfg.withDefaults()
	defer conn.Close()

	if err := h.Register(c); err != nil {
		h.logg.Warn(ctx, "realtime hub unavailable; closing connection")
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, c, cfg)
	}()

	h.readPump(ctx, conn, c, cfg)
	h.Unregister(c)
	<-writerDone
}

func (h *Hub) readPump(ctx context.Context, conn Conn, c *Client, cfg SessionConfig) {
	pongWait := cfg.PingInterval * 2
	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logg.Warn(h.logg.WithField(ctx, "connection_id", c.ID()), "realtime connection closed unexpectedly")
			}
			return
		}
		h.handleControl(ctx, c, raw)
	}
}

func (h *Hub) writePump(conn Conn, c *Client, cfg SessionConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case msg, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleControl(ctx context.Context, c *Client, raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(c, Frame{Event: EventError, Data: errorData{Message: "malformed message"}})
		return
	}

	switch msg.Type {
	case msgJoinUserRoom:
		id, err := uuid.Parse(msg.UserID)
		if err != nil {
			h.reply(c, Frame{Event: EventError, Data: errorData{Message: "invalid user id"}})
			return
		}
		h.join(ctx, c, UserRoom(id))
	case msgJoinAdminRoom:
		h.join(ctx, c, AdminRoom)
	case msgLeave:
		if err := h.Leave(c, msg.Room); err == nil {
			h.reply(c, Frame{Event: EventLeft, Room: msg.Room})
		}
	default:
		h.reply(c, Frame{Event: EventError, Data: errorData{Message: "unknown message type"}})
	}
}

func (h *Hub) join(ctx context.Context, c *Client, room string) {
	if err := h.Join(c, room); err != nil {
		message := "join failed"
		if errors.Is(err, ErrRoomForbidden) || errors.Is(err, ErrUnknownRoom) {
			message = err.Error()
		}
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
			"connection_id": c.ID(),
			"room":          room,
		}), "realtime join rejected")
		h.reply(c, Frame{Event: EventError, Room: room, Data: errorData{Message: message, Room: room}})
		return
	}
	h.reply(c, Frame{Event: EventJoined, Room: room})
}

// reply queues a frame for a single connection through the hub loop.
func (h *Hub) reply(c *Client, frame Frame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = h.exec(func() {
		if _, ok := h.clients[c]; !ok {
			return
		}
		if !c.offer(msg) {
			h.metrics.IncSlowConsumer()
			h.drop(c)
		}
	})
}
