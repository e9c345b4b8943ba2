package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/civicconnect/civic-backend/pkg/logger"
	"github.com/civicconnect/civic-backend/pkg/metrics"
)

// Frame is the envelope of every server message.
type Frame struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// HubParams configure the hub.
type HubParams struct {
	Logger  *logger.Logger
	Metrics *metrics.RealtimeMetrics
}

// Hub is the in-process room broker. All room state is owned by the loop
// goroutine; callers interact through commands, so publishes are delivered to
// each connection in call order.
type Hub struct {
	logg    *logger.Logger
	metrics *metrics.RealtimeMetrics

	commands chan func()
	quit     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub(params HubParams) (*Hub, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Hub{
		logg:     params.Logger,
		metrics:  params.Metrics,
		commands: make(chan func()),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		clients:  map[*Client]map[string]struct{}{},
		rooms:    map[string]map[*Client]struct{}{},
	}, nil
}

// Start runs the hub loop until Stop is called. Cancelling ctx does not stop
// the loop: connections stay open while the dispatch queue drains, and the
// owner calls Stop afterwards.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.stopped {
		return
	}
	h.started = true
	go h.run(context.WithoutCancel(ctx))
}

// Stop closes every connection and waits for the loop to exit.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	started := h.started
	close(h.quit)
	h.mu.Unlock()

	if started {
		<-h.done
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case cmd := <-h.commands:
			cmd()
		case <-h.quit:
			h.logg.Info(ctx, "realtime hub stopped")
			return
		}
	}
}

// exec runs fn on the hub loop and waits for it to finish.
func (h *Hub) exec(fn func()) error {
	done := make(chan struct{})
	select {
	case h.commands <- func() { fn(); close(done) }:
		<-done
		return nil
	case <-h.quit:
		return ErrHubStopped
	case <-h.done:
		return ErrHubStopped
	}
}

// Register tracks a new connection. It belongs to no room until it joins one.
func (h *Hub) Register(c *Client) error {
	return h.exec(func() {
		if _, ok := h.clients[c]; ok {
			return
		}
		h.clients[c] = map[string]struct{}{}
		h.metrics.ConnectionOpened()
	})
}

// Unregister drops a connection from every room and closes its send buffer.
func (h *Hub) Unregister(c *Client) {
	_ = h.exec(func() { h.drop(c) })
}

// Join subscribes c to room after checking the connection's identity may use
// it. Joining a room twice has no further effect.
func (h *Hub) Join(c *Client, room string) error {
	if err := authorize(c.Actor(), room); err != nil {
		return err
	}
	var joinErr error
	err := h.exec(func() {
		memberships, ok := h.clients[c]
		if !ok {
			joinErr = fmt.Errorf("connection not registered")
			return
		}
		memberships[room] = struct{}{}
		members := h.rooms[room]
		if members == nil {
			members = map[*Client]struct{}{}
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	})
	if err != nil {
		return err
	}
	return joinErr
}

// Leave unsubscribes c from room.
func (h *Hub) Leave(c *Client, room string) error {
	return h.exec(func() {
		if memberships, ok := h.clients[c]; ok {
			delete(memberships, room)
		}
		h.removeMember(room, c)
	})
}

// Publish queues the event to every connection subscribed to room and returns
// how many connections received it. Connections whose buffers are full are
// disconnected. Publishing to an empty room is a no-op.
func (h *Hub) Publish(room, event string, payload any) int {
	msg, err := json.Marshal(Frame{Event: event, Room: room, Data: payload})
	if err != nil {
		h.logg.Error(h.logg.WithField(context.Background(), "event", event), "encode realtime frame", err)
		return 0
	}

	delivered := 0
	if err := h.exec(func() {
		for c := range h.rooms[room] {
			if c.offer(msg) {
				delivered++
				continue
			}
			h.metrics.IncSlowConsumer()
			h.logg.Warn(h.logg.WithField(context.Background(), "connection_id", c.ID()), "realtime connection too slow; disconnecting")
			h.drop(c)
		}
	}); err != nil {
		return 0
	}
	h.metrics.AddPublished(event, delivered)
	return delivered
}

// Subscribers returns the number of connections in room.
func (h *Hub) Subscribers(room string) int {
	n := 0
	_ = h.exec(func() { n = len(h.rooms[room]) })
	return n
}

func (h *Hub) drop(c *Client) {
	memberships, ok := h.clients[c]
	if !ok {
		return
	}
	for room := range memberships {
		h.removeMember(room, c)
	}
	delete(h.clients, c)
	c.close()
	h.metrics.ConnectionClosed()
}

func (h *Hub) removeMember(room string, c *Client) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.drop(c)
	}
}
