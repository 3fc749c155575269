package rooms

import (
	"sync"

	"github.com/khunphaen/sync-server/internal/models"
)

// RoomEvent kinds carried on a room's bus.
const (
	EventPeerJoined     = "peer_joined"
	EventPeerLeft       = "peer_left"
	EventDataSync       = "data_sync"
	EventDocumentUpdate = "document_update"
	// EventHostChanged is reserved; nothing publishes it today because the
	// host id is stable for a room's lifetime.
	EventHostChanged = "host_changed"
)

// RoomEvent is a bus event observed by every subscriber of a room.
type RoomEvent struct {
	Kind      string
	Peer      models.PeerInfo
	PeerID    string
	From      string
	Data      string
	Document  string
	NewHostID string
}

// SystemBus broadcasts process-wide shutdown to every session.
type SystemBus struct {
	once sync.Once
	ch   chan struct{}
}

func NewSystemBus() *SystemBus {
	return &SystemBus{ch: make(chan struct{})}
}

// Shutdown signals every listener; safe to call more than once.
func (sb *SystemBus) Shutdown() {
	sb.once.Do(func() { close(sb.ch) })
}

// Done returns a channel closed when shutdown has been signalled.
func (sb *SystemBus) Done() <-chan struct{} {
	return sb.ch
}
