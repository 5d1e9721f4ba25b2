package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client is a server-side signaling connection. It satisfies Endpoint.
type Client struct {
	id            string
	participantID string
	Conn          *websocket.Conn
	send          chan Message
	done          chan struct{}
	closeOnce     sync.Once
	Log           zerolog.Logger
}

// NewClient wraps conn for participantID with a fresh channel handle.
func NewClient(conn *websocket.Conn, participantID string) *Client {
	id := uuid.NewString()
	return &Client{
		id:            id,
		participantID: participantID,
		Conn:          conn,
		send:          make(chan Message, 256),
		done:          make(chan struct{}),
		Log: log.With().
			Str("component", "signaling").
			Str("channel", id).
			Str("participant_id", participantID).
			Logger(),
	}
}

func (c *Client) ID() string            { return c.id }
func (c *Client) ParticipantID() string { return c.participantID }

// Send queues msg for the write pump. A full queue drops the message.
func (c *Client) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		c.Log.Warn().Str("type", msg.Type).Msg("send queue full, message dropped")
		return false
	}
}

// Outbound is drained by the write pump.
func (c *Client) Outbound() <-chan Message { return c.send }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close stops the pumps and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// IsConnected checks if client is still connected
func (c *Client) IsConnected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
