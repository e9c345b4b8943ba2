package realtime

import (
	"sync"

	"github.com/civicconnect/civic-backend/pkg/auth"
	"github.com/google/uuid"
)

const defaultSendBuffer = 64

// Client is one authenticated connection as seen by the hub. Its send buffer
// is written only from the hub loop.
type Client struct {
	id    string
	actor auth.Actor
	send  chan []byte
	once  sync.Once
}

// NewClient builds a client for an authenticated actor.
func NewClient(actor auth.Actor, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		id:    uuid.NewString(),
		actor: actor,
		send:  make(chan []byte, buffer),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Actor() auth.Actor { return c.actor }

// Send yields encoded frames queued for the connection. It is closed once the
// hub drops the client.
func (c *Client) Send() <-chan []byte { return c.send }

func (c *Client) offer(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}
