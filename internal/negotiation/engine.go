// Package negotiation runs the offer/answer exchange with every remote peer
// of a call. The engine owns one peer connection per remote channel and is
// driven by signaling events; transport, media capture and the peer
// connection implementation are injected.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	ws "github.com/preetsinghmakkar/SkillSwap/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEngineClosed     = errors.New("negotiation engine closed")
	ErrConnectionFailed = errors.New("connection failed")
)

const defaultTimeout = 30 * time.Second

type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerExchanged:
		return "answer-exchanged"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConnection is the subset of a WebRTC peer connection the engine drives.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	AddTransceiver(webrtc.RTPCodecType, webrtc.RTPTransceiverDirection) error
	// OnICECandidate is called for each locally gathered candidate.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

type PeerConnectionFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// MediaSource provides the local tracks attached to every peer connection.
type MediaSource interface {
	// Acquire captures local media. Calls after the first succeed return at once.
	Acquire(ctx context.Context) error
	Attach(pc PeerConnection) error
	// Close stops capture and releases devices.
	Close() error
}

// Transport carries signals to remote channels.
type Transport interface {
	Send(to string, payload ws.SignalPayload) error
	Leave() error
}

// Event reports a peer state change. Err is set when a peer was closed by
// a failure: ErrNegotiationTimeout, ErrMediaUnavailable or ErrConnectionFailed.
type Event struct {
	Peer  ws.PeerInfo
	State State
	Err   error
}

type Config struct {
	// ParticipantID identifies the local side for glare resolution.
	ParticipantID string
	Factory       PeerConnectionFactory
	Media         MediaSource
	Transport     Transport
	// Timeout bounds how long a peer may take to reach connected.
	Timeout time.Duration
	// OnEvent is called without engine locks held.
	OnEvent func(Event)
}

type peer struct {
	info      ws.PeerInfo
	pc        PeerConnection
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	timer     *time.Timer
	closed    atomic.Bool
	// Set while remote candidates belong to an offer we ignored in glare.
	dropRemote bool
}

type outbound struct {
	p       *peer
	payload ws.SignalPayload
}

type Engine struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	self    ws.PeerInfo
	peers   map[string]*peer
	closed  bool
	pending []Event
	// Signals go out in the order they were queued under mu.
	outq []outbound

	sendMu sync.Mutex
}

func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Engine{
		cfg:   cfg,
		self:  ws.PeerInfo{ParticipantID: cfg.ParticipantID},
		peers: make(map[string]*peer),
		log: log.With().
			Str("component", "negotiation").
			Str("participant_id", cfg.ParticipantID).
			Logger(),
	}
}

// Bind records the local signaling channel, known once the room is joined.
func (e *Engine) Bind(channel string) {
	e.mu.Lock()
	e.self.Channel = channel
	e.mu.Unlock()
}

// unlock releases mu and then delivers events queued while it was held.
func (e *Engine) unlock() {
	evs := e.pending
	e.pending = nil
	e.mu.Unlock()
	if e.cfg.OnEvent == nil {
		return
	}
	for _, ev := range evs {
		e.cfg.OnEvent(ev)
	}
}

func (e *Engine) emit(p *peer, err error) {
	e.pending = append(e.pending, Event{Peer: p.info, State: p.state, Err: err})
}

// yields reports whether the local side gives up its own offer to remote.
func (e *Engine) yields(remote ws.PeerInfo) bool {
	if e.self.ParticipantID != remote.ParticipantID {
		return e.self.ParticipantID < remote.ParticipantID
	}
	return e.self.Channel < remote.Channel
}

// acquire readies local media. Cancellation is reported as is, not as a
// media failure.
func (e *Engine) acquire(ctx context.Context) error {
	err := e.cfg.Media.Acquire(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return mediaError(err)
}

func mediaError(err error) error {
	if errors.Is(err, apperrors.ErrMediaUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrMediaUnavailable, err)
}

// PeerDiscovered starts an offer toward a peer that appeared in the room.
// A peer that already has a live connection is left alone.
func (e *Engine) PeerDiscovered(ctx context.Context, info ws.PeerInfo) error {
	if err := e.acquire(ctx); err != nil {
		if errors.Is(err, apperrors.ErrMediaUnavailable) {
			e.failPeer(info, err)
		}
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.unlock()
		return ErrEngineClosed
	}
	if p, ok := e.peers[info.Channel]; ok && p.pc != nil && p.state != StateClosed {
		e.unlock()
		return nil
	}

	p, err := e.openPeer(info, e.peers[info.Channel])
	if err != nil {
		e.unlock()
		return err
	}

	offer, err := p.pc.CreateOffer()
	if err == nil {
		err = p.pc.SetLocalDescription(offer)
	}
	if err != nil {
		e.closePeer(p, ErrConnectionFailed)
		e.unlock()
		return fmt.Errorf("create offer for %s: %w", info.Channel, err)
	}
	p.state = StateOfferSent
	e.enqueue(p, ws.SignalPayload{Kind: ws.SignalOffer, SDP: offer.SDP})
	e.emit(p, nil)
	e.unlock()

	e.log.Debug().Str("channel", info.Channel).Msg("offer created")
	return e.flush()
}

// HandleSignal applies a signal relayed from another channel.
func (e *Engine) HandleSignal(ctx context.Context, from ws.PeerInfo, payload ws.SignalPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}
	switch payload.Kind {
	case ws.SignalOffer:
		return e.handleOffer(ctx, from, payload.SDP)
	case ws.SignalAnswer:
		return e.handleAnswer(from, payload.SDP)
	default:
		return e.handleCandidate(from, *payload.Candidate)
	}
}

func (e *Engine) handleOffer(ctx context.Context, from ws.PeerInfo, sdp string) error {
	if err := e.acquire(ctx); err != nil {
		if errors.Is(err, apperrors.ErrMediaUnavailable) {
			e.failPeer(from, err)
		}
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.unlock()
		return ErrEngineClosed
	}

	prev := e.peers[from.Channel]
	if prev != nil && prev.pc != nil {
		switch prev.state {
		case StateOfferSent:
			if !e.yields(from) {
				e.log.Info().Str("channel", from.Channel).Msg("glare, keeping local offer")
				prev.pending = nil
				prev.dropRemote = true
				e.unlock()
				return nil
			}
			e.log.Info().Str("channel", from.Channel).Msg("glare, yielding to remote offer")
			e.closePeer(prev, nil)
		case StateClosed:
		default:
			e.log.Info().
				Str("channel", from.Channel).
				Str("state", prev.state.String()).
				Msg("remote restarted negotiation")
			e.closePeer(prev, nil)
			prev.pending = nil
		}
	}

	p, err := e.openPeer(from, prev)
	if err != nil {
		e.unlock()
		return err
	}
	p.state = StateOfferReceived
	e.emit(p, nil)

	if err := e.setRemote(p, webrtc.SDPTypeOffer, sdp); err != nil {
		e.closePeer(p, ErrConnectionFailed)
		e.unlock()
		return err
	}
	answer, err := p.pc.CreateAnswer()
	if err == nil {
		err = p.pc.SetLocalDescription(answer)
	}
	if err != nil {
		e.closePeer(p, ErrConnectionFailed)
		e.unlock()
		return fmt.Errorf("create answer for %s: %w", from.Channel, err)
	}
	p.state = StateAnswerExchanged
	e.enqueue(p, ws.SignalPayload{Kind: ws.SignalAnswer, SDP: answer.SDP})
	e.emit(p, nil)
	e.unlock()

	return e.flush()
}

func (e *Engine) handleAnswer(from ws.PeerInfo, sdp string) error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrEngineClosed
	}

	p, ok := e.peers[from.Channel]
	if !ok || p.state != StateOfferSent {
		e.log.Debug().Str("channel", from.Channel).Msg("ignoring unexpected answer")
		return nil
	}
	p.dropRemote = false
	if err := e.setRemote(p, webrtc.SDPTypeAnswer, sdp); err != nil {
		e.closePeer(p, ErrConnectionFailed)
		return err
	}
	p.state = StateAnswerExchanged
	e.emit(p, nil)
	return nil
}

func (e *Engine) handleCandidate(from ws.PeerInfo, c ws.ICECandidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}

	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrEngineClosed
	}

	p, ok := e.peers[from.Channel]
	if !ok {
		p = &peer{info: from, state: StateIdle}
		e.peers[from.Channel] = p
	}
	if p.dropRemote {
		return nil
	}
	if p.pc == nil || !p.remoteSet || p.state == StateClosed {
		p.pending = append(p.pending, init)
		return nil
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		e.log.Warn().Err(err).Str("channel", from.Channel).Msg("remote candidate rejected")
	}
	return nil
}

// setRemote applies the remote description and drains queued candidates.
// Caller holds mu.
func (e *Engine) setRemote(p *peer, typ webrtc.SDPType, sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s from %s: %w", typ, p.info.Channel, err)
	}
	p.remoteSet = true
	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			e.log.Warn().Err(err).Str("channel", p.info.Channel).Msg("queued candidate rejected")
		}
	}
	p.pending = nil
	return nil
}

// openPeer creates a connection for info, carrying over candidates queued on
// prev. Caller holds mu.
func (e *Engine) openPeer(info ws.PeerInfo, prev *peer) (*peer, error) {
	p := &peer{info: info, state: StateIdle}
	if prev != nil {
		p.pending = prev.pending
	}

	pc, err := e.cfg.Factory.NewPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", info.Channel, err)
	}
	p.pc = pc
	e.peers[info.Channel] = p

	if err := e.cfg.Media.Attach(pc); err != nil {
		err = mediaError(err)
		e.closePeer(p, err)
		return nil, err
	}

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) { e.localCandidate(p, c) })
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) { e.connectionState(p, s) })
	p.timer = time.AfterFunc(e.cfg.Timeout, func() { e.timeout(p) })
	return p, nil
}

// closePeer tears down p's connection. Caller holds mu.
func (e *Engine) closePeer(p *peer, cause error) {
	if p.closed.Swap(true) {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.pc != nil {
		if err := p.pc.Close(); err != nil {
			e.log.Debug().Err(err).Str("channel", p.info.Channel).Msg("close peer connection")
		}
	}
	p.state = StateClosed
	e.emit(p, cause)
}

// failPeer records a failure for a peer that never got a connection.
func (e *Engine) failPeer(info ws.PeerInfo, err error) {
	e.mu.Lock()
	e.pending = append(e.pending, Event{Peer: info, State: StateClosed, Err: err})
	e.unlock()
	e.log.Warn().Err(err).Str("channel", info.Channel).Msg("local media unavailable")
}

// enqueue queues a signal for p. Caller holds mu.
func (e *Engine) enqueue(p *peer, payload ws.SignalPayload) {
	e.outq = append(e.outq, outbound{p: p, payload: payload})
}

// flush sends queued signals. One goroutine sends at a time; a caller that
// finds another sender at work leaves its signals to it. Signals of a peer
// closed before its turn are dropped.
func (e *Engine) flush() error {
	var errs []error
	for {
		if !e.sendMu.TryLock() {
			return errors.Join(errs...)
		}
		for {
			e.mu.Lock()
			if len(e.outq) == 0 {
				e.mu.Unlock()
				break
			}
			out := e.outq[0]
			e.outq = e.outq[1:]
			e.mu.Unlock()

			if out.p.closed.Load() {
				e.log.Debug().
					Str("channel", out.p.info.Channel).
					Str("kind", string(out.payload.Kind)).
					Msg("dropping signal for closed peer")
				continue
			}
			if err := e.cfg.Transport.Send(out.p.info.Channel, out.payload); err != nil {
				if out.payload.Kind == ws.SignalICECandidate {
					e.log.Debug().Err(err).Str("channel", out.p.info.Channel).Msg("candidate not sent")
					continue
				}
				errs = append(errs, fmt.Errorf("send %s to %s: %w", out.payload.Kind, out.p.info.Channel, err))
			}
		}
		e.sendMu.Unlock()

		e.mu.Lock()
		more := len(e.outq) > 0
		e.mu.Unlock()
		if !more {
			return errors.Join(errs...)
		}
	}
}

// localCandidate queues a gathered candidate behind our description, which
// was queued before any candidate could be gathered.
func (e *Engine) localCandidate(p *peer, c webrtc.ICECandidateInit) {
	e.mu.Lock()
	if p.closed.Load() || e.peers[p.info.Channel] != p {
		e.mu.Unlock()
		return
	}
	e.enqueue(p, ws.SignalPayload{
		Kind: ws.SignalICECandidate,
		Candidate: &ws.ICECandidate{
			Candidate:        c.Candidate,
			SDPMid:           c.SDPMid,
			SDPMLineIndex:    c.SDPMLineIndex,
			UsernameFragment: c.UsernameFragment,
		},
	})
	e.mu.Unlock()
	if err := e.flush(); err != nil {
		e.log.Warn().Err(err).Msg("signal not sent")
	}
}

func (e *Engine) connectionState(p *peer, s webrtc.PeerConnectionState) {
	e.mu.Lock()
	defer e.unlock()
	if p.closed.Load() || e.peers[p.info.Channel] != p {
		return
	}

	switch s {
	case webrtc.PeerConnectionStateConnected:
		if p.state == StateConnected {
			return
		}
		p.timer.Stop()
		p.state = StateConnected
		e.emit(p, nil)
		e.log.Info().Str("channel", p.info.Channel).Msg("peer connected")
	case webrtc.PeerConnectionStateFailed:
		e.log.Warn().Str("channel", p.info.Channel).Msg("peer connection failed")
		e.closePeer(p, ErrConnectionFailed)
	case webrtc.PeerConnectionStateClosed:
		e.closePeer(p, nil)
	}
}

func (e *Engine) timeout(p *peer) {
	e.mu.Lock()
	defer e.unlock()
	if p.closed.Load() || p.state == StateConnected || e.peers[p.info.Channel] != p {
		return
	}
	e.log.Warn().
		Str("channel", p.info.Channel).
		Str("state", p.state.String()).
		Dur("timeout", e.cfg.Timeout).
		Msg("negotiation timed out")
	e.closePeer(p, apperrors.ErrNegotiationTimeout)
}

// PeerLeft closes and forgets the connection to channel.
func (e *Engine) PeerLeft(channel string) {
	e.mu.Lock()
	defer e.unlock()
	p, ok := e.peers[channel]
	if !ok {
		return
	}
	delete(e.peers, channel)
	e.closePeer(p, nil)
}

// Reset closes every peer connection but keeps local media, so the call can
// renegotiate after the signaling transport came back.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.unlock()
	for ch, p := range e.peers {
		e.closePeer(p, nil)
		delete(e.peers, ch)
	}
}

// Leave ends the call: peer connections are closed, local media is released
// and the transport is told to leave the room. Safe at any point of a
// negotiation and safe to call more than once.
func (e *Engine) Leave() error {
	e.mu.Lock()
	if e.closed {
		e.unlock()
		return nil
	}
	e.closed = true
	for ch, p := range e.peers {
		e.closePeer(p, nil)
		delete(e.peers, ch)
	}
	e.unlock()

	var errs []error
	if err := e.cfg.Media.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release media: %w", err))
	}
	if err := e.cfg.Transport.Leave(); err != nil {
		errs = append(errs, fmt.Errorf("leave room: %w", err))
	}
	return errors.Join(errs...)
}

// State returns the negotiation state for channel.
func (e *Engine) State(channel string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.peers[channel]
	if !ok {
		return StateIdle, false
	}
	return p.state, true
}

// Peers lists the remote channels that currently have a live connection.
func (e *Engine) Peers() []ws.PeerInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ws.PeerInfo, 0, len(e.peers))
	for _, p := range e.peers {
		if p.pc != nil && p.state != StateClosed {
			out = append(out, p.info)
		}
	}
	return out
}
