package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/bus"
	"github.com/loopline/realtime/internals/call"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// connState is per-connection bookkeeping the event handlers need: the peer
// set computed once at connect, and the stream this connection hosts, if any.
type connState struct {
	mu           sync.Mutex
	peers        []string
	hostedStream string
	hostName     string
}

const (
	actionJoinPost         = "join-post"
	actionJoinConversation = "join-conversation"
	actionJoinLiveStream   = "join-live-stream"
	actionHostStream       = "host-stream"
	actionAcceptCall       = "accept-call"
	actionRejectCall       = "reject-call"
	actionLeaveCall        = "leave-call"
	actionHeartbeat        = "heartbeat"
)

type roomCommand struct {
	ID string `json:"id"`
}

type hostStreamCommand struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type acceptCallCommand struct {
	RoomID    string `json:"roomId"`
	CallerID  string `json:"callerId"`
	MediaType string `json:"mediaType"`
	Token     string `json:"token"`
	Avatar    string `json:"avatar"`
}

type callRoomCommand struct {
	RoomID string `json:"roomId"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	// The authentication handshake is the upstream collaborator's job; by the
	// time the request reaches us the identity is on the request.
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	name := r.Header.Get(headerUserName)
	if name == "" {
		name = r.URL.Query().Get("name")
	}

	if !s.validID(userID) {
		conn.WriteMessage(websocket.CloseMessage, []byte("Missing userId"))
		conn.Close()
		return
	}

	client := bus.NewClient(uuid.NewString(), userID, name, conn, s.logger)
	state := &connState{}

	client.OnCommand = func(c *bus.Client, cmd bus.Command) {
		s.dispatchCommand(c, state, cmd)
	}
	client.OnDisconnect = func(c *bus.Client) {
		s.handleDisconnect(c, state)
	}

	s.hub.RegisterClient(client)
	// A page refresh opens the new connection before the old one dies.
	s.hub.DisconnectClientsByUserID(userID, client.ID)

	go client.WritePump(s.config.Server.WSPingInterval, s.config.Server.WSWriteTimeout)
	go client.ReadPump(s.config.Server.WSReadLimit, s.config.Server.WSPongTimeout)

	// Presence registration runs after the pumps so the two-way online
	// exchange can already be delivered to this connection.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		peers, err := s.presence.Connected(ctx, userID)
		if err != nil {
			s.logger.Error("Presence registration failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}
		state.mu.Lock()
		state.peers = peers
		state.mu.Unlock()
	}()
}

func (s *Server) dispatchCommand(client *bus.Client, state *connState, cmd bus.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Event-driven operations fail silently toward the actor: there is no
	// acknowledgement channel in this design. Failures are logged only.
	switch cmd.Action {
	case actionJoinPost:
		if id, ok := s.decodeRoomID(client, cmd.Data); ok {
			client.JoinRoom(bus.PostRoom(id))
		}

	case actionJoinConversation:
		if id, ok := s.decodeRoomID(client, cmd.Data); ok {
			client.JoinRoom(bus.ConversationRoom(id))
		}

	case actionJoinLiveStream:
		if id, ok := s.decodeRoomID(client, cmd.Data); ok {
			client.JoinRoom(bus.StreamRoom(id))
		}

	case actionHostStream:
		var hc hostStreamCommand
		if err := json.Unmarshal(cmd.Data, &hc); err != nil || !s.validID(hc.ID) {
			return
		}
		state.mu.Lock()
		state.hostedStream = hc.ID
		state.hostName = hc.DisplayName
		state.mu.Unlock()
		client.JoinRoom(bus.StreamRoom(hc.ID))
		// Covers the reconnect-during-grace case; a no-op otherwise.
		if err := s.streams.HostRejoined(ctx, hc.ID); err != nil {
			s.logger.Error("Host rejoin failed",
				zap.String("stream_id", hc.ID),
				zap.Error(err),
			)
		}

	case actionAcceptCall:
		var ac acceptCallCommand
		if err := json.Unmarshal(cmd.Data, &ac); err != nil {
			return
		}
		if err := s.calls.Accept(ctx, call.AcceptParams{
			RoomID:         ac.RoomID,
			ReceiverID:     client.UserID,
			ReceiverName:   client.Name,
			ReceiverAvatar: ac.Avatar,
			CallerID:       ac.CallerID,
			MediaType:      ac.MediaType,
			Token:          ac.Token,
		}); err != nil {
			s.logger.Error("Call accept failed",
				zap.String("room_id", ac.RoomID),
				zap.Error(err),
			)
		}

	case actionRejectCall:
		var rc callRoomCommand
		if err := json.Unmarshal(cmd.Data, &rc); err != nil {
			return
		}
		if err := s.calls.Reject(ctx, rc.RoomID, client.UserID); err != nil {
			s.logger.Error("Call reject failed",
				zap.String("room_id", rc.RoomID),
				zap.Error(err),
			)
		}

	case actionLeaveCall:
		var lc callRoomCommand
		if err := json.Unmarshal(cmd.Data, &lc); err != nil {
			return
		}
		if err := s.calls.CallerLeft(ctx, lc.RoomID, client.UserID); err != nil {
			s.logger.Error("Call leave failed",
				zap.String("room_id", lc.RoomID),
				zap.Error(err),
			)
		}

	case actionHeartbeat:
		if err := s.presence.Heartbeat(ctx, client.UserID); err != nil {
			s.logger.Error("Heartbeat failed",
				zap.String("user_id", client.UserID),
				zap.Error(err),
			)
		}

	default:
		s.logger.Debug("Unknown command",
			zap.String("action", cmd.Action),
			zap.String("client_id", client.ID),
		)
	}
}

func (s *Server) decodeRoomID(client *bus.Client, data json.RawMessage) (string, bool) {
	var rc roomCommand
	if err := json.Unmarshal(data, &rc); err != nil || !s.validID(rc.ID) {
		s.logger.Debug("Join command with bad room id",
			zap.String("client_id", client.ID),
		)
		return "", false
	}
	return rc.ID, true
}

func (s *Server) handleDisconnect(client *bus.Client, state *connState) {
	s.hub.UnregisterClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state.mu.Lock()
	peers := state.peers
	hostedStream := state.hostedStream
	hostName := state.hostName
	state.mu.Unlock()

	// After a page refresh the replacement connection is already registered
	// when the stale one unwinds, so tearing down presence here would tell
	// every peer the user went offline mid-session.
	if s.hub.HasClientForUser(client.UserID, client.ID) {
		s.logger.Debug("Skipping presence teardown, user still connected",
			zap.String("user_id", client.UserID),
		)
	} else if err := s.presence.Disconnected(ctx, client.UserID, peers); err != nil {
		s.logger.Error("Presence deregistration failed",
			zap.String("user_id", client.UserID),
			zap.Error(err),
		)
	}

	if hostedStream != "" {
		if err := s.streams.HostLeft(ctx, hostedStream, hostName); err != nil {
			s.logger.Error("Failed to open grace window",
				zap.String("stream_id", hostedStream),
				zap.Error(err),
			)
		}
	}
}
