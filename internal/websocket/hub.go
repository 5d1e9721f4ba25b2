package websocket

import (
	"sort"
	"sync"

	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Endpoint is one connected signaling channel.
type Endpoint interface {
	// ID is the channel handle, unique per connection.
	ID() string
	ParticipantID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg Message) bool
}

// Room is the set of channels currently connected for one call.
type Room struct {
	ID      string
	mu      sync.Mutex
	members map[string]Endpoint
	closed  bool
}

func (r *Room) peersExcept(channel string) []PeerInfo {
	peers := make([]PeerInfo, 0, len(r.members))
	for id, ep := range r.members {
		if id == channel {
			continue
		}
		peers = append(peers, PeerInfo{ParticipantID: ep.ParticipantID(), Channel: id})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Channel < peers[j].Channel })
	return peers
}

func (r *Room) broadcast(except string, msg Message) {
	for id, ep := range r.members {
		if id == except {
			continue
		}
		ep.Send(msg)
	}
}

// Hub maps room ids to their members and relays signals between them.
// The room map is guarded by mu; membership of a room by the room's own lock.
type Hub struct {
	mu         sync.Mutex
	rooms      map[string]*Room
	channels   map[string]map[string]struct{} // channel -> room ids
	maxMembers int
	log        zerolog.Logger
}

// NewHub creates a hub that admits at most maxMembers channels per room.
func NewHub(maxMembers int) *Hub {
	if maxMembers < 1 {
		maxMembers = 2
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		channels:   make(map[string]map[string]struct{}),
		maxMembers: maxMembers,
		log:        log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) roomFor(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, members: make(map[string]Endpoint)}
		h.rooms[roomID] = room
		metrics.RoomsActive.Inc()
	}
	return room
}

// Join adds ep to roomID, creating the room if needed, and returns the
// peers that were already there. The others receive peer-joined. Joining
// again with the same channel changes nothing.
func (h *Hub) Join(roomID string, ep Endpoint) ([]PeerInfo, error) {
	for {
		room := h.roomFor(roomID)
		room.mu.Lock()
		if room.closed {
			// Emptied and dropped between lookup and lock.
			room.mu.Unlock()
			continue
		}

		peers := room.peersExcept(ep.ID())
		if existing, ok := room.members[ep.ID()]; ok && existing == ep {
			room.mu.Unlock()
			return peers, nil
		}
		if len(room.members) >= h.maxMembers {
			room.mu.Unlock()
			h.log.Warn().
				Str("room_id", roomID).
				Str("channel", ep.ID()).
				Msg("join rejected, room is full")
			return nil, apperrors.ErrRoomFull
		}

		room.members[ep.ID()] = ep
		msg, _ := NewMessage(TypePeerJoined, PeerEventPayload{
			RoomID:        roomID,
			ParticipantID: ep.ParticipantID(),
			Channel:       ep.ID(),
		})
		room.broadcast(ep.ID(), msg)
		room.mu.Unlock()

		metrics.PeerEvents.WithLabelValues(TypePeerJoined).Add(float64(len(peers)))

		h.mu.Lock()
		if h.channels[ep.ID()] == nil {
			h.channels[ep.ID()] = make(map[string]struct{})
		}
		h.channels[ep.ID()][roomID] = struct{}{}
		h.mu.Unlock()

		h.log.Info().
			Str("room_id", roomID).
			Str("channel", ep.ID()).
			Str("participant_id", ep.ParticipantID()).
			Int("peers", len(peers)).
			Msg("channel joined room")
		return peers, nil
	}
}

// Leave removes channel from every room it is in. It is safe to call any
// number of times.
func (h *Hub) Leave(channel string) {
	h.mu.Lock()
	rooms := h.channels[channel]
	delete(h.channels, channel)
	h.mu.Unlock()

	for roomID := range rooms {
		h.leaveRoom(channel, roomID)
	}
}

// LeaveRoom removes channel from a single room.
func (h *Hub) LeaveRoom(channel, roomID string) {
	h.mu.Lock()
	rooms, ok := h.channels[channel]
	if ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mu.Unlock()

	h.leaveRoom(channel, roomID)
}

func (h *Hub) leaveRoom(channel, roomID string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ep, ok := room.members[channel]
	if !ok {
		return
	}
	delete(room.members, channel)

	msg, _ := NewMessage(TypePeerLeft, PeerEventPayload{
		RoomID:        roomID,
		ParticipantID: ep.ParticipantID(),
		Channel:       channel,
	})
	room.broadcast(channel, msg)
	metrics.PeerEvents.WithLabelValues(TypePeerLeft).Add(float64(len(room.members)))

	h.log.Info().
		Str("room_id", roomID).
		Str("channel", channel).
		Str("participant_id", ep.ParticipantID()).
		Msg("channel left room")

	if len(room.members) == 0 {
		room.closed = true
		h.mu.Lock()
		if h.rooms[roomID] == room {
			delete(h.rooms, roomID)
			metrics.RoomsActive.Dec()
		}
		h.mu.Unlock()
	}
}

// Relay forwards payload from one channel to another channel sharing a room
// with it. A target that is gone is not an error; Relay reports whether the
// message was handed to the target.
func (h *Hub) Relay(from, to string, payload SignalPayload) bool {
	h.mu.Lock()
	roomIDs := make([]string, 0, len(h.channels[from]))
	for id := range h.channels[from] {
		roomIDs = append(roomIDs, id)
	}
	h.mu.Unlock()

	for _, roomID := range roomIDs {
		h.mu.Lock()
		room, ok := h.rooms[roomID]
		h.mu.Unlock()
		if !ok {
			continue
		}

		room.mu.Lock()
		sender, okFrom := room.members[from]
		target, okTo := room.members[to]
		room.mu.Unlock()
		if !okFrom || !okTo {
			continue
		}

		msg, err := NewMessage(TypeSignal, SignalEvent{
			From:            from,
			FromParticipant: sender.ParticipantID(),
			Payload:         payload,
		})
		if err != nil {
			h.log.Error().Err(err).Msg("encode signal")
			return false
		}
		if !target.Send(msg) {
			return false
		}
		metrics.MessagesRelayed.WithLabelValues(string(payload.Kind)).Inc()
		return true
	}

	h.log.Debug().Str("from", from).Str("to", to).Msg("relay target not connected, dropped")
	return false
}

// Members lists the channels currently in roomID.
func (h *Hub) Members(roomID string) []PeerInfo {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return room.peersExcept("")
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
