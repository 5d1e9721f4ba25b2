package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
)

// Message types, client to server.
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"
	TypeSignal    = "signal"
	TypePing      = "ping"
)

// Message types, server to client.
const (
	TypeRoomJoined = "room-joined"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeError      = "error"
	TypePong       = "pong"
)

// Message is the envelope for every frame on the signaling socket.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into an envelope of the given type.
func NewMessage(typ string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: typ}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Message{Type: typ, Payload: data}, nil
}

type JoinRoomPayload struct {
	RoomID string `json:"room_id" validate:"required,max=128"`
}

// LeaveRoomPayload leaves one room, or every room when RoomID is empty.
type LeaveRoomPayload struct {
	RoomID string `json:"room_id,omitempty"`
}

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate" validate:"required"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// SignalPayload is the closed union carried by signal messages. Offers and
// answers carry an SDP; candidates carry a Candidate.
type SignalPayload struct {
	Kind      SignalKind    `json:"kind" validate:"required,oneof=offer answer ice-candidate"`
	SDP       string        `json:"sdp,omitempty" validate:"required_unless=Kind ice-candidate"`
	Candidate *ICECandidate `json:"candidate,omitempty" validate:"required_if=Kind ice-candidate"`
}

var validate = validator.New()

// Validate rejects payloads that are not one of the three known shapes.
func (p SignalPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidSignal, err)
	}
	return nil
}

// SignalRequest is sent by a client to reach one channel in its room.
type SignalRequest struct {
	To      string        `json:"to" validate:"required"`
	Payload SignalPayload `json:"payload"`
}

func (r SignalRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidSignal, err)
	}
	return nil
}

type PeerInfo struct {
	ParticipantID string `json:"participant_id"`
	Channel       string `json:"channel"`
}

type RoomJoinedPayload struct {
	RoomID  string     `json:"room_id"`
	Channel string     `json:"channel"`
	Peers   []PeerInfo `json:"peers"`
}

// PeerEventPayload is sent with peer-joined and peer-left.
type PeerEventPayload struct {
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
	Channel       string `json:"channel"`
}

// SignalEvent is a relayed signal as the receiving client sees it.
type SignalEvent struct {
	From            string        `json:"from"`
	FromParticipant string        `json:"from_participant"`
	Payload         SignalPayload `json:"payload"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
