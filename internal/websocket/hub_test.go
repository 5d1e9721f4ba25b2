package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	id          string
	participant string

	mu       sync.Mutex
	received []Message
}

func newFakeEndpoint(id, participant string) *fakeEndpoint {
	return &fakeEndpoint{id: id, participant: participant}
}

func (f *fakeEndpoint) ID() string            { return f.id }
func (f *fakeEndpoint) ParticipantID() string { return f.participant }

func (f *fakeEndpoint) Send(msg Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msg)
	return true
}

func (f *fakeEndpoint) ofType(typ string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.received {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func offer(sdp string) SignalPayload {
	return SignalPayload{Kind: SignalOffer, SDP: sdp}
}

func TestJoinReturnsExistingPeersAndNotifiesThem(t *testing.T) {
	assert := assert.New(t)
	hub := NewHub(2)
	alice := newFakeEndpoint("ch-a", "alice")
	bob := newFakeEndpoint("ch-b", "bob")

	peers, err := hub.Join("room-1", alice)
	require.NoError(t, err)
	assert.Empty(peers)

	peers, err = hub.Join("room-1", bob)
	require.NoError(t, err)
	assert.Equal([]PeerInfo{{ParticipantID: "alice", Channel: "ch-a"}}, peers)

	joined := alice.ofType(TypePeerJoined)
	require.Len(t, joined, 1)
	var ev PeerEventPayload
	require.NoError(t, json.Unmarshal(joined[0].Payload, &ev))
	assert.Equal("bob", ev.ParticipantID)
	assert.Equal("ch-b", ev.Channel)
	assert.Equal("room-1", ev.RoomID)

	assert.Empty(bob.ofType(TypePeerJoined))
}

func TestJoinIsIdempotentForSameChannel(t *testing.T) {
	hub := NewHub(2)
	alice := newFakeEndpoint("ch-a", "alice")
	bob := newFakeEndpoint("ch-b", "bob")

	_, err := hub.Join("room-1", alice)
	require.NoError(t, err)
	_, err = hub.Join("room-1", bob)
	require.NoError(t, err)

	peers, err := hub.Join("room-1", bob)
	require.NoError(t, err)
	assert.Len(t, peers, 1)
	assert.Len(t, alice.ofType(TypePeerJoined), 1)
	assert.Len(t, hub.Members("room-1"), 2)
}

func TestJoinRejectsBeyondCapacity(t *testing.T) {
	hub := NewHub(2)
	for i := 0; i < 2; i++ {
		_, err := hub.Join("room-1", newFakeEndpoint(fmt.Sprintf("ch-%d", i), "p"))
		require.NoError(t, err)
	}

	_, err := hub.Join("room-1", newFakeEndpoint("ch-3", "mallory"))
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)
}

func TestRelayTagsSenderAndIgnoresMissingTarget(t *testing.T) {
	assert := assert.New(t)
	hub := NewHub(2)
	alice := newFakeEndpoint("ch-a", "alice")
	bob := newFakeEndpoint("ch-b", "bob")
	_, _ = hub.Join("room-1", alice)
	_, _ = hub.Join("room-1", bob)

	assert.True(hub.Relay("ch-a", "ch-b", offer("v=0")))

	signals := bob.ofType(TypeSignal)
	require.Len(t, signals, 1)
	var ev SignalEvent
	require.NoError(t, json.Unmarshal(signals[0].Payload, &ev))
	assert.Equal("ch-a", ev.From)
	assert.Equal("alice", ev.FromParticipant)
	assert.Equal(SignalOffer, ev.Payload.Kind)
	assert.Equal("v=0", ev.Payload.SDP)

	assert.False(hub.Relay("ch-a", "ch-gone", offer("v=0")))
	assert.False(hub.Relay("ch-unknown", "ch-b", offer("v=0")))
	assert.Len(bob.ofType(TypeSignal), 1)
}

func TestRelayDoesNotCrossRooms(t *testing.T) {
	hub := NewHub(2)
	alice := newFakeEndpoint("ch-a", "alice")
	eve := newFakeEndpoint("ch-e", "eve")
	_, _ = hub.Join("room-1", alice)
	_, _ = hub.Join("room-2", eve)

	assert.False(t, hub.Relay("ch-e", "ch-a", offer("v=0")))
	assert.Empty(t, alice.ofType(TypeSignal))
}

func TestLeaveIsIdempotentAndDestroysEmptyRoom(t *testing.T) {
	hub := NewHub(2)
	alice := newFakeEndpoint("ch-a", "alice")
	bob := newFakeEndpoint("ch-b", "bob")
	_, _ = hub.Join("room-1", alice)
	_, _ = hub.Join("room-1", bob)

	hub.Leave("ch-b")
	hub.Leave("ch-b")
	hub.LeaveRoom("ch-b", "room-1")

	left := alice.ofType(TypePeerLeft)
	require.Len(t, left, 1)
	var ev PeerEventPayload
	require.NoError(t, json.Unmarshal(left[0].Payload, &ev))
	assert.Equal(t, "bob", ev.ParticipantID)

	hub.Leave("ch-a")
	assert.Equal(t, 0, hub.RoomCount())
	assert.Nil(t, hub.Members("room-1"))

	_, err := hub.Join("room-1", alice)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.RoomCount())
}

func TestPeerLeftCountMatchesDepartedJoins(t *testing.T) {
	hub := NewHub(16)
	survivor := newFakeEndpoint("ch-survivor", "survivor")
	_, err := hub.Join("room-1", survivor)
	require.NoError(t, err)

	const departed = 7
	for i := 0; i < departed; i++ {
		ep := newFakeEndpoint(fmt.Sprintf("ch-%d", i), fmt.Sprintf("p-%d", i))
		_, err := hub.Join("room-1", ep)
		require.NoError(t, err)
		// Re-joining the same channel is not a distinct join.
		_, err = hub.Join("room-1", ep)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < departed; i++ {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(ch string) {
				defer wg.Done()
				hub.Leave(ch)
			}(fmt.Sprintf("ch-%d", i))
		}
	}
	wg.Wait()

	assert.Len(t, survivor.ofType(TypePeerJoined), departed)
	assert.Len(t, survivor.ofType(TypePeerLeft), departed)
	assert.Len(t, hub.Members("room-1"), 1)
}

func TestSignalPayloadValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload SignalPayload
		valid   bool
	}{
		{"offer", SignalPayload{Kind: SignalOffer, SDP: "v=0"}, true},
		{"answer", SignalPayload{Kind: SignalAnswer, SDP: "v=0"}, true},
		{"candidate", SignalPayload{Kind: SignalICECandidate, Candidate: &ICECandidate{Candidate: "candidate:1 1 udp 1 1.2.3.4 5 typ host"}}, true},
		{"offer without sdp", SignalPayload{Kind: SignalOffer}, false},
		{"candidate without body", SignalPayload{Kind: SignalICECandidate}, false},
		{"candidate with empty string", SignalPayload{Kind: SignalICECandidate, Candidate: &ICECandidate{}}, false},
		{"unknown kind", SignalPayload{Kind: "renegotiate", SDP: "v=0"}, false},
		{"missing kind", SignalPayload{SDP: "v=0"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvalidSignal)
		})
	}
}

func TestErrorMessageCarriesCode(t *testing.T) {
	msg := ErrorMessage(apperrors.ErrRoomFull)
	assert.Equal(t, TypeError, msg.Type)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, CodeRoomFull, p.Code)

	assert.Equal(t, CodeJoinFailed, ErrorCode(fmt.Errorf("%w: no room", ErrJoinFailed)))
	assert.Equal(t, CodeInvalidSignal, ErrorCode(apperrors.ErrInvalidSignal))
	assert.True(t, JoinReply(CodeRoomFull))
	assert.True(t, JoinReply(CodeJoinFailed))
	assert.False(t, JoinReply(CodeInvalidSignal))
}
