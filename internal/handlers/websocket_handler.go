package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/preetsinghmakkar/SkillSwap/internal/dtos"
	"github.com/preetsinghmakkar/SkillSwap/internal/middlewares"
	ws "github.com/preetsinghmakkar/SkillSwap/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from allowedOrigins. An empty list or
// "*" accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket upgrades an authenticated request into a signaling channel.
// MUST be protected by WebSocketAuthMiddleware.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, err := middlewares.GetUserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dtos.ErrorResponse{Error: "not authenticated"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	client := ws.NewClient(conn, userID.String())
	client.Log.Info().Msg("signaling channel opened")

	go h.writePump(client)
	go h.readPump(client)
}

// readPump reads client frames and dispatches them until the socket closes.
func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		h.hub.Leave(client.ID())
		client.Close()
		client.Log.Info().Msg("signaling channel closed")
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ws.Message
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				client.Log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		if err := h.dispatch(client, msg); err != nil {
			client.Log.Debug().Err(err).Str("type", msg.Type).Msg("rejected message")
			client.Send(ws.ErrorMessage(err))
		}
	}
}

func (h *WebSocketHandler) dispatch(client *ws.Client, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinRoom:
		var p ws.JoinRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
			return fmt.Errorf("%w: join-room needs a room_id", ws.ErrJoinFailed)
		}
		peers, err := h.hub.Join(p.RoomID, client)
		if errors.Is(err, apperrors.ErrRoomFull) {
			return err
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ws.ErrJoinFailed, err)
		}
		reply, err := ws.NewMessage(ws.TypeRoomJoined, ws.RoomJoinedPayload{
			RoomID:  p.RoomID,
			Channel: client.ID(),
			Peers:   peers,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ws.ErrJoinFailed, err)
		}
		client.Send(reply)

	case ws.TypeSignal:
		var req ws.SignalRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return fmt.Errorf("%w: %v", ws.ErrMalformedMessage, err)
		}
		if err := req.Validate(); err != nil {
			return err
		}
		h.hub.Relay(client.ID(), req.To, req.Payload)

	case ws.TypeLeaveRoom:
		var p ws.LeaveRoomPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ws.ErrMalformedMessage, err)
			}
		}
		if p.RoomID == "" {
			h.hub.Leave(client.ID())
		} else {
			h.hub.LeaveRoom(client.ID(), p.RoomID)
		}

	case ws.TypePing:
		client.Send(ws.Message{Type: ws.TypePong})

	default:
		return fmt.Errorf("%w: %q", ws.ErrUnknownMessageType, msg.Type)
	}
	return nil
}

// writePump writes queued messages and keepalive pings to the socket.
func (h *WebSocketHandler) writePump(client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.Outbound():
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(message); err != nil {
				client.Log.Warn().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done():
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
