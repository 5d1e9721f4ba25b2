package signaling

import (
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/handlers"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
	ws "github.com/preetsinghmakkar/SkillSwap/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "signaling-secret"

// trackingListener remembers accepted connections so a test can cut them.
type trackingListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *trackingListener) dropAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		c.Close()
	}
	l.conns = nil
}

type testServer struct {
	*httptest.Server
	listener *trackingListener
	hub      *ws.Hub
}

func newTestServer(t *testing.T, maxMembers int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(maxMembers)
	router := gin.New()
	router.GET("/ws", middlewares.WebSocketAuthMiddleware(testSecret), handlers.NewWebSocketHandler(hub, nil).HandleWebSocket)

	srv := httptest.NewUnstartedServer(router)
	tl := &trackingListener{Listener: srv.Listener}
	srv.Listener = tl
	srv.Start()
	t.Cleanup(func() {
		tl.dropAll()
		srv.Close()
	})
	return &testServer{Server: srv, listener: tl, hub: hub}
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middlewares.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func connect(t *testing.T, srv *testServer, userID string, attempts int) *Client {
	t.Helper()
	c := NewClient(Options{
		URL:         srv.url(),
		Token:       token(t, userID),
		MaxAttempts: attempts,
		BaseDelay:   10 * time.Millisecond,
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	next(t, c, EventConnected)
	return c
}

// next skips events until one of typ arrives.
func next(t *testing.T, c *Client, typ EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "events closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestJoinReturnsExistingPeers(t *testing.T) {
	srv := newTestServer(t, 2)
	alice, bob := uuid.NewString(), uuid.NewString()
	a := connect(t, srv, alice, 0)
	b := connect(t, srv, bob, 0)
	ctx := context.Background()

	aRoom, err := a.Join(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, aRoom.Peers)

	bRoom, err := b.Join(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, bRoom.Peers, 1)
	assert.Equal(t, alice, bRoom.Peers[0].ParticipantID)
	assert.Equal(t, aRoom.Channel, bRoom.Peers[0].Channel)

	ev := next(t, a, EventPeerJoined)
	assert.Equal(t, bob, ev.Peer.ParticipantID)
	assert.Equal(t, bRoom.Channel, ev.Peer.Channel)
}

func TestSendRelaysSignal(t *testing.T) {
	srv := newTestServer(t, 2)
	alice, bob := uuid.NewString(), uuid.NewString()
	a := connect(t, srv, alice, 0)
	b := connect(t, srv, bob, 0)
	ctx := context.Background()

	aRoom, err := a.Join(ctx, "room-1")
	require.NoError(t, err)
	bRoom, err := b.Join(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, b.Send(aRoom.Channel, ws.SignalPayload{Kind: ws.SignalOffer, SDP: "v=0"}))

	ev := next(t, a, EventSignal)
	assert.Equal(t, bRoom.Channel, ev.From.Channel)
	assert.Equal(t, bob, ev.From.ParticipantID)
	assert.Equal(t, ws.SignalOffer, ev.Signal.Kind)
	assert.Equal(t, "v=0", ev.Signal.SDP)
}

func TestSendRejectsInvalidPayload(t *testing.T) {
	srv := newTestServer(t, 2)
	a := connect(t, srv, uuid.NewString(), 0)

	err := a.Send("someone", ws.SignalPayload{Kind: ws.SignalAnswer})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSignal)
}

func TestJoinFullRoom(t *testing.T) {
	srv := newTestServer(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c := connect(t, srv, uuid.NewString(), 0)
		_, err := c.Join(ctx, "room-1")
		require.NoError(t, err)
	}

	c := connect(t, srv, uuid.NewString(), 0)
	_, err := c.Join(ctx, "room-1")
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)
}

func TestJoinWithoutRoomFails(t *testing.T) {
	srv := newTestServer(t, 2)
	c := connect(t, srv, uuid.NewString(), 0)

	_, err := c.Join(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ws.CodeJoinFailed)
}

func TestSignalErrorLeavesJoinPending(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1"})
	wait := make(chan joinReply, 1)
	c.joinWait = wait

	c.handle(ws.ErrorMessage(fmt.Errorf("%w: bad candidate", apperrors.ErrInvalidSignal)))
	ev := <-c.Events()
	assert.Equal(t, EventError, ev.Type)
	assert.ErrorIs(t, ev.Err, apperrors.ErrInvalidSignal)
	assert.Empty(t, wait)

	c.handle(ws.ErrorMessage(apperrors.ErrRoomFull))
	require.Len(t, wait, 1)
	assert.ErrorIs(t, (<-wait).err, apperrors.ErrRoomFull)
	assert.Empty(t, c.Events())
}

func TestLeaveNotifiesPeers(t *testing.T) {
	srv := newTestServer(t, 2)
	bob := uuid.NewString()
	a := connect(t, srv, uuid.NewString(), 0)
	b := connect(t, srv, bob, 0)
	ctx := context.Background()

	_, err := a.Join(ctx, "room-1")
	require.NoError(t, err)
	_, err = b.Join(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, b.Leave())
	ev := next(t, a, EventPeerLeft)
	assert.Equal(t, bob, ev.Peer.ParticipantID)

	// Nothing left to leave.
	assert.NoError(t, b.Leave())
}

func TestReconnectRejoinsRoom(t *testing.T) {
	srv := newTestServer(t, 2)
	a := connect(t, srv, uuid.NewString(), 5)

	first, err := a.Join(context.Background(), "room-1")
	require.NoError(t, err)

	srv.listener.dropAll()

	ev := next(t, a, EventDisconnected)
	assert.ErrorIs(t, ev.Err, apperrors.ErrTransportDisconnected)
	next(t, a, EventConnected)

	ev = next(t, a, EventRoomJoined)
	require.NotNil(t, ev.Room)
	assert.Equal(t, "room-1", ev.Room.RoomID)
	assert.NotEqual(t, first.Channel, ev.Room.Channel)

	require.Eventually(t, func() bool {
		return len(srv.hub.Members("room-1")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReconnectGivesUp(t *testing.T) {
	srv := newTestServer(t, 2)
	a := connect(t, srv, uuid.NewString(), 2)

	srv.Close()
	srv.listener.dropAll()

	next(t, a, EventDisconnected)
	ev := next(t, a, EventError)
	assert.ErrorIs(t, ev.Err, apperrors.ErrTransportDisconnected)

	select {
	case _, ok := <-a.Events():
		assert.False(t, ok, "events should close after giving up")
	case <-time.After(5 * time.Second):
		t.Fatal("events not closed")
	}
}

func TestCloseEndsEvents(t *testing.T) {
	srv := newTestServer(t, 2)
	a := connect(t, srv, uuid.NewString(), 5)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	for range a.Events() {
	}
	_, err := a.Join(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBackoffIsBounded(t *testing.T) {
	c := NewClient(Options{BaseDelay: 100 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, c.backoff(1))
	assert.Equal(t, 200*time.Millisecond, c.backoff(2))
	assert.Equal(t, 800*time.Millisecond, c.backoff(4))
	assert.Equal(t, maxBackoff, c.backoff(20))
}
