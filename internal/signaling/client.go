// Package signaling is the client end of the signaling socket. It dials the
// coordinator, joins a room, relays signals and keeps the connection alive
// across transport drops.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	ws "github.com/preetsinghmakkar/SkillSwap/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait    = 10 * time.Second
	dialTimeout  = 10 * time.Second
	eventBuffer  = 64
	maxBackoff   = 10 * time.Second
	defaultDelay = 500 * time.Millisecond
)

var ErrClosed = errors.New("signaling client closed")

type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventRoomJoined
	EventPeerJoined
	EventPeerLeft
	EventSignal
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventRoomJoined:
		return "room-joined"
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerLeft:
		return "peer-left"
	case EventSignal:
		return "signal"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered on Events. Which fields are set depends on Type.
type Event struct {
	Type EventType

	// RoomJoined after a reconnect.
	Room *ws.RoomJoinedPayload
	// PeerJoined and PeerLeft.
	Peer ws.PeerInfo
	// Signal.
	From   ws.PeerInfo
	Signal ws.SignalPayload

	// Disconnected, Error. An Error wrapping ErrTransportDisconnected is
	// terminal: the events channel is closed right after it.
	Err error
}

type Options struct {
	URL   string
	Token string

	// MaxAttempts bounds reconnects after a drop. Zero disables reconnecting.
	MaxAttempts int
	BaseDelay   time.Duration

	Dialer *websocket.Dialer
}

type joinReply struct {
	room ws.RoomJoinedPayload
	err  error
}

// Client is safe for concurrent use.
type Client struct {
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger

	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	roomID   string
	joinWait chan joinReply
	started  bool
	closed   bool

	writeMu sync.Mutex
}

func NewClient(opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
		}
	}
	return &Client{
		opts:   opts,
		dialer: dialer,
		log:    log.With().Str("component", "signaling-client").Logger(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Events streams everything the client observes. It is closed after Close or
// once reconnecting has given up.
func (c *Client) Events() <-chan Event { return c.events }

// Connect dials the coordinator and starts reading. It may be called once.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("signaling client already connected")
	}
	c.started = true
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	if c.closed {
		// Close ran while dialing and left the events channel to us.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		close(c.events)
		return ErrClosed
	}
	if err != nil {
		c.started = false
		c.mu.Unlock()
		return err
	}
	c.conn = conn
	c.mu.Unlock()

	c.emit(Event{Type: EventConnected})
	go c.run(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	if c.opts.Token != "" {
		q := u.Query()
		q.Set("token", c.opts.Token)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %d)", apperrors.ErrTransportDisconnected, u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", apperrors.ErrTransportDisconnected, u.Host, err)
	}
	return conn, nil
}

// Join enters roomID and returns the peers already in it. The room is
// remembered and re-joined after a reconnect.
func (c *Client) Join(ctx context.Context, roomID string) (ws.RoomJoinedPayload, error) {
	wait := make(chan joinReply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ws.RoomJoinedPayload{}, ErrClosed
	}
	if c.joinWait != nil {
		c.mu.Unlock()
		return ws.RoomJoinedPayload{}, errors.New("join already in progress")
	}
	c.joinWait = wait
	c.mu.Unlock()

	abandon := func() {
		c.mu.Lock()
		if c.joinWait == wait {
			c.joinWait = nil
		}
		c.mu.Unlock()
	}

	if err := c.write(ws.TypeJoinRoom, ws.JoinRoomPayload{RoomID: roomID}); err != nil {
		abandon()
		return ws.RoomJoinedPayload{}, err
	}

	select {
	case reply := <-wait:
		if reply.err != nil {
			return ws.RoomJoinedPayload{}, reply.err
		}
		c.mu.Lock()
		c.roomID = reply.room.RoomID
		c.mu.Unlock()
		return reply.room, nil
	case <-ctx.Done():
		abandon()
		return ws.RoomJoinedPayload{}, ctx.Err()
	case <-c.done:
		return ws.RoomJoinedPayload{}, ErrClosed
	}
}

// Send relays payload to the channel to. Delivery is best effort.
func (c *Client) Send(to string, payload ws.SignalPayload) error {
	req := ws.SignalRequest{To: to, Payload: payload}
	if err := req.Validate(); err != nil {
		return err
	}
	return c.write(ws.TypeSignal, req)
}

// Leave exits the current room and forgets it.
func (c *Client) Leave() error {
	c.mu.Lock()
	roomID := c.roomID
	c.roomID = ""
	c.mu.Unlock()
	if roomID == "" {
		return nil
	}
	return c.write(ws.TypeLeaveRoom, ws.LeaveRoomPayload{RoomID: roomID})
}

// Close shuts the socket down and stops reconnecting. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	started := c.started
	c.mu.Unlock()

	if !started {
		close(c.events)
	}
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) write(typ string, payload any) error {
	msg, err := ws.NewMessage(typ, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return fmt.Errorf("%w: not connected", apperrors.ErrTransportDisconnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportDisconnected, err)
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// emit blocks until the event is taken or the client is closed.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// run owns the events channel once Connect succeeds.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.events)

	for {
		err := c.readLoop(conn)
		if c.isClosed() {
			return
		}

		c.log.Warn().Err(err).Msg("signaling transport lost")
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.failJoin(fmt.Errorf("%w: %v", apperrors.ErrTransportDisconnected, err))
		c.emit(Event{Type: EventDisconnected, Err: fmt.Errorf("%w: %v", apperrors.ErrTransportDisconnected, err)})

		conn, err = c.reconnect()
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				c.log.Error().Err(err).Msg("giving up on signaling transport")
				c.emit(Event{Type: EventError, Err: err})
			}
			return
		}
	}
}

// backoff doubles BaseDelay per attempt up to maxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.BaseDelay
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (c *Client) reconnect() (*websocket.Conn, error) {
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		timer := time.NewTimer(c.backoff(attempt))
		select {
		case <-timer.C:
		case <-c.done:
			timer.Stop()
			return nil, ErrClosed
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-c.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil, ErrClosed
		}
		c.conn = conn
		roomID := c.roomID
		c.mu.Unlock()

		c.log.Info().Int("attempt", attempt).Msg("signaling transport restored")
		c.emit(Event{Type: EventConnected})
		if roomID != "" {
			if err := c.write(ws.TypeJoinRoom, ws.JoinRoomPayload{RoomID: roomID}); err != nil {
				c.log.Warn().Err(err).Str("room_id", roomID).Msg("re-join failed")
			}
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: gave up after %d reconnect attempts", apperrors.ErrTransportDisconnected, c.opts.MaxAttempts)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ws.Message) {
	switch msg.Type {
	case ws.TypeRoomJoined:
		var p ws.RoomJoinedPayload
		if !c.decode(msg, &p) {
			return
		}
		if c.resolveJoin(joinReply{room: p}) {
			return
		}
		c.emit(Event{Type: EventRoomJoined, Room: &p})

	case ws.TypePeerJoined, ws.TypePeerLeft:
		var p ws.PeerEventPayload
		if !c.decode(msg, &p) {
			return
		}
		typ := EventPeerJoined
		if msg.Type == ws.TypePeerLeft {
			typ = EventPeerLeft
		}
		c.emit(Event{Type: typ, Peer: ws.PeerInfo{ParticipantID: p.ParticipantID, Channel: p.Channel}})

	case ws.TypeSignal:
		var p ws.SignalEvent
		if !c.decode(msg, &p) {
			return
		}
		if err := p.Payload.Validate(); err != nil {
			c.log.Warn().Err(err).Str("from", p.From).Msg("dropping invalid signal")
			return
		}
		c.emit(Event{
			Type:   EventSignal,
			From:   ws.PeerInfo{ParticipantID: p.FromParticipant, Channel: p.From},
			Signal: p.Payload,
		})

	case ws.TypeError:
		var p ws.ErrorPayload
		if !c.decode(msg, &p) {
			return
		}
		err := remoteError(p)
		if ws.JoinReply(p.Code) && c.resolveJoin(joinReply{err: err}) {
			return
		}
		c.emit(Event{Type: EventError, Err: err})

	case ws.TypePong:

	default:
		c.log.Debug().Str("type", msg.Type).Msg("ignoring unknown message")
	}
}

func (c *Client) decode(msg ws.Message, into any) bool {
	if err := json.Unmarshal(msg.Payload, into); err != nil {
		c.log.Warn().Err(err).Str("type", msg.Type).Msg("undecodable message")
		return false
	}
	return true
}

// resolveJoin hands reply to a waiting Join and reports whether one was waiting.
func (c *Client) resolveJoin(reply joinReply) bool {
	c.mu.Lock()
	wait := c.joinWait
	c.joinWait = nil
	c.mu.Unlock()
	if wait == nil {
		return false
	}
	wait <- reply
	return true
}

func (c *Client) failJoin(err error) {
	c.resolveJoin(joinReply{err: err})
}

// remoteError maps a coordinator error code back onto the local taxonomy.
func remoteError(p ws.ErrorPayload) error {
	switch p.Code {
	case ws.CodeRoomFull:
		return fmt.Errorf("%w: %s", apperrors.ErrRoomFull, p.Message)
	case ws.CodeInvalidSignal:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSignal, p.Message)
	default:
		return fmt.Errorf("signaling error %s: %s", p.Code, p.Message)
	}
}
