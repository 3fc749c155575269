package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/khunphaen/sync-server/internal/models"
)

// Room is the in-memory coordination object bound to one room code. All
// field access goes through its mutex; mutations that peers should observe
// publish the matching RoomEvent before the lock is released, so event order
// matches mutation order.
type Room struct {
	ID        string
	HostID    string
	CreatedAt time.Time

	mu          sync.Mutex
	peers       map[string]models.PeerInfo
	snapshot    string
	hasSnapshot bool
	lastSync    time.Time
	emptySince  time.Time // zero value means the room has peers
	closed      bool      // set once the sweeper has removed the room
	bus         *Bus
}

// Info is a point-in-time copy of the room's shareable state.
type Info struct {
	RoomID      string
	HostID      string
	CreatedAt   time.Time
	Peers       []models.PeerInfo
	Snapshot    string
	HasSnapshot bool
}

// NewRoom creates a room with no peers. A freshly created room counts as
// empty from birth so the idle sweeper can collect it if nobody joins.
func NewRoom(id, hostID string, snapshot *string) *Room {
	r := &Room{
		ID:         id,
		HostID:     hostID,
		CreatedAt:  time.Now(),
		peers:      make(map[string]models.PeerInfo),
		lastSync:   time.Now(),
		emptySince: time.Now(),
		bus:        NewBus(),
	}
	if snapshot != nil {
		r.snapshot = *snapshot
		r.hasSnapshot = true
	}
	return r
}

// Subscribe attaches a new bus subscription. Subscribe before joining so no
// event published after the join can be missed.
func (r *Room) Subscribe() *Subscription {
	return r.bus.Subscribe()
}

// Join atomically revives the room, inserts the peer, publishes PeerJoined
// and returns a state copy for the RoomInfo reply. It fails when the sweeper
// already removed the room, in which case the caller must re-acquire it.
func (r *Room) Join(peer models.PeerInfo) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Info{}, false
	}

	r.emptySince = time.Time{}
	r.peers[peer.ID] = peer
	r.bus.Publish(RoomEvent{Kind: EventPeerJoined, Peer: peer})
	peersConnected.Inc()

	return r.infoLocked(), true
}

// Leave removes the peer and publishes PeerLeft. When the last peer departs
// the room is marked empty for the idle sweeper.
func (r *Room) Leave(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[peerID]; !ok {
		return
	}
	delete(r.peers, peerID)
	r.bus.Publish(RoomEvent{Kind: EventPeerLeft, PeerID: peerID})
	peersConnected.Dec()

	if len(r.peers) == 0 {
		r.emptySince = time.Now()
	}
}

// Broadcast publishes opaque peer data; the sender's own session suppresses
// the echo when translating bus events.
func (r *Room) Broadcast(from, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus.Publish(RoomEvent{Kind: EventDataSync, From: from, Data: data})
}

// SetSnapshot replaces the document wholesale (last writer wins) and
// publishes DocumentUpdate.
func (r *Room) SetSnapshot(from, document string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = document
	r.hasSnapshot = true
	r.lastSync = time.Now()
	r.bus.Publish(RoomEvent{Kind: EventDocumentUpdate, From: from, Document: document})
}

// Snapshot returns the last document pushed by any peer, if one exists.
func (r *Room) Snapshot() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot, r.hasSnapshot
}

// Info returns a copy of the room's shareable state.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *Room) infoLocked() Info {
	peers := make([]models.PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].JoinedAt.Equal(peers[j].JoinedAt) {
			return peers[i].ID < peers[j].ID
		}
		return peers[i].JoinedAt.Before(peers[j].JoinedAt)
	})
	return Info{
		RoomID:      r.ID,
		HostID:      r.HostID,
		CreatedAt:   r.CreatedAt,
		Peers:       peers,
		Snapshot:    r.snapshot,
		HasSnapshot: r.hasSnapshot,
	}
}

// PeerCount returns the number of connected peers.
func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// EmptySince reports when the room last became empty; ok is false while the
// room has peers.
func (r *Room) EmptySince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emptySince.IsZero() {
		return time.Time{}, false
	}
	return r.emptySince, true
}

// closeIfIdle marks the room closed when it has been empty at least
// threshold. A closed room rejects joins, which forces revival through the
// registry and makes eviction atomic with a racing Join.
func (r *Room) closeIfIdle(now time.Time, threshold time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.emptySince.IsZero() || len(r.peers) > 0 {
		return false
	}
	if now.Sub(r.emptySince) < threshold {
		return false
	}
	r.closed = true
	return true
}
