package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Documents ride in sync frames,
	// so the limit is generous.
	maxMessageSize = 4 << 20
)

// joinAttempts bounds the revival retry when a join races eviction.
const joinAttempts = 3

// Session drives one websocket connection through its lifecycle. It starts
// unbound; a join binds it to a room until leave or disconnect. The Run loop
// is the connection's only writer, so no write interleaving is possible.
type Session struct {
	manager *Manager
	system  *SystemBus
	conn    *websocket.Conn
	logger  *utils.Logger

	// guard, when set, authorizes a join before the room is acquired.
	guard func(ctx context.Context, roomCode string) error

	// Bound state, owned by the Run loop.
	roomCode string
	peerID   string
	sub      *Subscription
}

// SetJoinGuard installs an authorization hook run on every join attempt.
// The guard's error message is sent to the peer verbatim.
func (s *Session) SetJoinGuard(guard func(ctx context.Context, roomCode string) error) {
	s.guard = guard
}

func NewSession(manager *Manager, system *SystemBus, conn *websocket.Conn, logger *utils.Logger) *Session {
	return &Session{
		manager: manager,
		system:  system,
		conn:    conn,
		logger:  logger,
	}
}

// Run pumps the connection until the peer disconnects, the socket errors or
// the server shuts down. It always releases the peer's room membership on
// the way out.
func (s *Session) Run(ctx context.Context) {
	defer s.cleanup()

	inbound := make(chan []byte, 16)
	go s.readPump(ctx, inbound)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		// A nil channel blocks forever, so bus events are only selected on
		// while the session is bound to a room.
		var busCh <-chan RoomEvent
		if s.sub != nil {
			busCh = s.sub.Events()
		}

		select {
		case raw, ok := <-inbound:
			if !ok {
				return
			}
			if err := s.handleMessage(ctx, raw); err != nil {
				return
			}

		case ev := <-busCh:
			if err := s.handleEvent(ev); err != nil {
				return
			}

		case <-s.system.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump is the connection's only reader. It feeds raw frames to the Run
// loop and closes the channel when the socket dies.
func (s *Session) readPump(ctx context.Context, inbound chan<- []byte) {
	defer close(inbound)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		mt, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug(ctx, "websocket read error: %v", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		inbound <- raw
	}
}

func (s *Session) handleMessage(ctx context.Context, raw []byte) error {
	var msg models.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return s.write(models.NewError("Invalid message format"))
	}

	switch msg.Action {
	case models.ActionJoin:
		return s.handleJoin(ctx, msg)
	case models.ActionLeave:
		return s.handleLeave()
	case models.ActionBroadcast:
		return s.handleBroadcast(msg)
	case models.ActionSyncDocument:
		return s.handleSyncDocument(msg)
	case models.ActionRequestSync:
		return s.handleRequestSync()
	case models.ActionPing:
		return s.write(models.NewPong())
	default:
		return s.write(models.NewError("Unknown action"))
	}
}

func (s *Session) handleJoin(ctx context.Context, msg models.ClientMessage) error {
	if s.sub != nil {
		return s.write(models.NewError("Already joined a room"))
	}
	if msg.RoomCode == "" {
		return s.write(models.NewError("Room code is required"))
	}
	if s.guard != nil {
		if err := s.guard(ctx, msg.RoomCode); err != nil {
			return s.write(models.NewError(err.Error()))
		}
	}

	peerID := msg.PeerID
	if peerID == "" {
		peerID = uuid.NewString()
	}
	peer := models.PeerInfo{
		ID:       peerID,
		JoinedAt: time.Now(),
		IsHost:   msg.IsHost,
		Metadata: msg.Metadata,
	}

	hostHint := ""
	if msg.IsHost {
		hostHint = peerID
	}

	// Subscribing before joining guarantees the subscription sees every event
	// published after our own join. Join fails on a room the sweeper closed
	// in the meantime, so re-acquire and retry.
	var info Info
	joined := false
	for i := 0; i < joinAttempts && !joined; i++ {
		room, err := s.manager.ensureExists(ctx, msg.RoomCode, hostHint)
		if err == ErrRoomNotFound {
			return s.write(models.NewError("Room not found"))
		}
		if err != nil {
			s.logger.Error(ctx, "join failed for room %s: %v", msg.RoomCode, err)
			return s.write(models.NewError("Failed to join room"))
		}

		sub := room.Subscribe()
		info, joined = room.Join(peer)
		if !joined {
			sub.Close()
			continue
		}
		s.sub = sub
	}
	if !joined {
		return s.write(models.NewError("Failed to join room"))
	}

	s.roomCode = msg.RoomCode
	s.peerID = peerID

	if err := s.write(models.NewRoomInfo(msg.RoomCode, info.HostID, info.Peers)); err != nil {
		return err
	}
	if err := s.write(models.NewConnected(peerID, msg.RoomCode)); err != nil {
		return err
	}
	if info.HasSnapshot {
		return s.write(models.NewDocumentSync(info.Snapshot))
	}
	return nil
}

// errSessionClosed terminates the Run loop after an orderly leave.
var errSessionClosed = errors.New("session closed")

// handleLeave releases room membership and ends the session; rejoining
// requires a fresh connection.
func (s *Session) handleLeave() error {
	if s.sub == nil {
		return s.write(models.NewError("Not joined to a room"))
	}
	s.unbind()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return errSessionClosed
}

func (s *Session) handleBroadcast(msg models.ClientMessage) error {
	room, ok := s.boundRoom()
	if !ok {
		return s.write(models.NewError("Not joined to a room"))
	}
	room.Broadcast(s.peerID, msg.Data)
	return nil
}

func (s *Session) handleSyncDocument(msg models.ClientMessage) error {
	room, ok := s.boundRoom()
	if !ok {
		return s.write(models.NewError("Not joined to a room"))
	}
	room.SetSnapshot(s.peerID, msg.Document)
	if s.manager.queue != nil {
		s.manager.queue.Enqueue(s.roomCode, msg.Document)
	}
	return nil
}

func (s *Session) handleRequestSync() error {
	room, ok := s.boundRoom()
	if !ok {
		return s.write(models.NewError("Not joined to a room"))
	}
	// An empty document still answers, so a late peer can tell "no document
	// yet" apart from "request lost".
	doc, _ := room.Snapshot()
	return s.write(models.NewDocumentSync(doc))
}

// handleEvent translates a bus event to the outbound frame this peer should
// see. Data and document echoes from the peer itself are suppressed; its own
// peer_joined is forwarded like everyone else's.
func (s *Session) handleEvent(ev RoomEvent) error {
	switch ev.Kind {
	case EventPeerJoined:
		return s.write(models.NewPeerJoined(ev.Peer))
	case EventPeerLeft:
		return s.write(models.NewPeerLeft(ev.PeerID))
	case EventDataSync:
		if ev.From == s.peerID {
			return nil
		}
		return s.write(models.NewData(ev.From, ev.Data))
	case EventDocumentUpdate:
		if ev.From == s.peerID {
			return nil
		}
		return s.write(models.NewDocumentSync(ev.Document))
	default:
		return nil
	}
}

// boundRoom re-acquires the session's room from the registry. Membership
// keeps the room from being evicted, so a miss means the session is unbound.
func (s *Session) boundRoom() (*Room, bool) {
	if s.sub == nil {
		return nil, false
	}
	return s.manager.registry.Get(s.roomCode)
}

func (s *Session) write(msg models.ServerMessage) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// unbind releases room membership and drops the subscription.
func (s *Session) unbind() {
	if s.sub == nil {
		return
	}
	if room, ok := s.manager.registry.Get(s.roomCode); ok {
		room.Leave(s.peerID)
	}
	s.sub.Close()
	s.sub = nil
	s.roomCode = ""
	s.peerID = ""
}

func (s *Session) cleanup() {
	s.unbind()
	s.conn.Close()
}
