// Package call joins a signaling room and keeps a negotiation engine fed with
// the room's events until the call is left or the transport gives up.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/negotiation"
	"github.com/preetsinghmakkar/SkillSwap/internal/signaling"
	ws "github.com/preetsinghmakkar/SkillSwap/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Signaling is the part of signaling.Client a call needs.
type Signaling interface {
	Join(ctx context.Context, roomID string) (ws.RoomJoinedPayload, error)
	Send(to string, payload ws.SignalPayload) error
	Leave() error
	Events() <-chan signaling.Event
}

type Options struct {
	RoomID        string
	ParticipantID string
	Factory       negotiation.PeerConnectionFactory
	Media         negotiation.MediaSource
	Timeout       time.Duration
	// OnPeerEvent, when set, sees every peer state change.
	OnPeerEvent func(negotiation.Event)
}

type Call struct {
	roomID string
	sig    Signaling
	engine *negotiation.Engine
	log    zerolog.Logger
	onPeer func(negotiation.Event)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	leaveOnce sync.Once
	leaveErr  error

	mu      sync.Mutex
	channel string
	err     error
}

// Join enters opts.RoomID. Offers to the peers already there are made on the
// call's event loop, which is the only goroutine driving the engine.
func Join(ctx context.Context, sig Signaling, opts Options) (*Call, error) {
	if opts.RoomID == "" {
		return nil, fmt.Errorf("%w: room id is required", apperrors.ErrInvalidInput)
	}

	callCtx, cancel := context.WithCancel(context.Background())
	c := &Call{
		roomID: opts.RoomID,
		sig:    sig,
		onPeer: opts.OnPeerEvent,
		ctx:    callCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		log: log.With().
			Str("component", "call").
			Str("room_id", opts.RoomID).
			Str("participant_id", opts.ParticipantID).
			Logger(),
	}
	c.engine = negotiation.NewEngine(negotiation.Config{
		ParticipantID: opts.ParticipantID,
		Factory:       opts.Factory,
		Media:         opts.Media,
		Transport:     sig,
		Timeout:       opts.Timeout,
		OnEvent:       c.peerEvent,
	})

	room, err := sig.Join(ctx, opts.RoomID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join room %s: %w", opts.RoomID, err)
	}
	c.bind(room)
	c.log.Info().Str("channel", room.Channel).Int("peers", len(room.Peers)).Msg("joined call")

	go c.loop(room.Peers)
	return c, nil
}

func (c *Call) bind(room ws.RoomJoinedPayload) {
	c.mu.Lock()
	c.channel = room.Channel
	c.mu.Unlock()
	c.engine.Bind(room.Channel)
}

func (c *Call) discover(peers []ws.PeerInfo) {
	for _, p := range peers {
		if err := c.engine.PeerDiscovered(c.ctx, p); err != nil {
			c.log.Warn().Err(err).Str("peer", p.Channel).Msg("offer failed")
		}
	}
}

func (c *Call) peerEvent(ev negotiation.Event) {
	l := c.log.Debug()
	if ev.Err != nil {
		l = c.log.Warn().Err(ev.Err)
	}
	l.Str("peer", ev.Peer.Channel).Str("state", ev.State.String()).Msg("peer state")
	if c.onPeer != nil {
		c.onPeer(ev)
	}
}

func (c *Call) loop(peers []ws.PeerInfo) {
	defer close(c.done)
	c.discover(peers)

	events := c.sig.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.fail(fmt.Errorf("%w: signaling closed", apperrors.ErrTransportDisconnected))
				return
			}
			if terminal := c.handle(ev); terminal {
				return
			}
		}
	}
}

// handle applies one signaling event and reports whether the call is over.
func (c *Call) handle(ev signaling.Event) bool {
	switch ev.Type {
	case signaling.EventConnected:
		c.log.Debug().Msg("signaling connected")

	case signaling.EventDisconnected:
		// Remote peers see us leave and renegotiate once we are back.
		c.log.Warn().Err(ev.Err).Msg("signaling lost, dropping peer connections")
		c.engine.Reset()

	case signaling.EventRoomJoined:
		c.bind(*ev.Room)
		c.log.Info().Str("channel", ev.Room.Channel).Msg("rejoined call")
		c.discover(ev.Room.Peers)

	case signaling.EventPeerJoined:
		if err := c.engine.PeerDiscovered(c.ctx, ev.Peer); err != nil {
			c.log.Warn().Err(err).Str("peer", ev.Peer.Channel).Msg("offer failed")
		}

	case signaling.EventPeerLeft:
		c.engine.PeerLeft(ev.Peer.Channel)

	case signaling.EventSignal:
		if err := c.engine.HandleSignal(c.ctx, ev.From, ev.Signal); err != nil {
			c.log.Warn().Err(err).Str("peer", ev.From.Channel).Str("kind", string(ev.Signal.Kind)).Msg("signal not applied")
		}

	case signaling.EventError:
		if errors.Is(ev.Err, apperrors.ErrTransportDisconnected) {
			c.fail(ev.Err)
			return true
		}
		c.log.Warn().Err(ev.Err).Msg("signaling error")
	}
	return false
}

// fail ends the call after the transport is gone for good.
func (c *Call) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.log.Error().Err(err).Msg("call ended by transport failure")
	c.engine.Reset()
}

// Channel is the local signaling channel in the room.
func (c *Call) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Peers lists the remote channels with a live connection.
func (c *Call) Peers() []ws.PeerInfo { return c.engine.Peers() }

func (c *Call) PeerState(channel string) (negotiation.State, bool) {
	return c.engine.State(channel)
}

// Done is closed when the call stops processing events.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err reports why the call ended on its own, or nil.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Leave hangs up. It may be called at any point and more than once.
func (c *Call) Leave() error {
	c.leaveOnce.Do(func() {
		c.cancel()
		<-c.done
		err := c.engine.Leave()
		if err != nil && c.Err() != nil && errors.Is(err, apperrors.ErrTransportDisconnected) {
			// Nobody left to tell.
			err = nil
		}
		c.leaveErr = err
		c.log.Info().Msg("left call")
	})
	return c.leaveErr
}
