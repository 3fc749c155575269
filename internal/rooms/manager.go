package rooms

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

// ErrRoomNotFound means the code names no live room, no persisted snapshot
// and no workspace, so there is nothing to revive.
var ErrRoomNotFound = errors.New("room not found")

// codeAlphabet excludes ambiguous characters (I, L, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// sweepInterval is how often the idle sweeper scans the registry.
const sweepInterval = 60 * time.Second

// SnapshotStore is the subset of persistence the manager needs to revive
// rooms. *db.Database satisfies it.
type SnapshotStore interface {
	FindRoomSnapshot(ctx context.Context, roomCode string) (*models.RoomSnapshot, error)
	FindWorkspaceByRoomCode(ctx context.Context, roomCode string) (*models.Workspace, error)
}

// SnapshotQueue accepts document write-backs without blocking the caller.
type SnapshotQueue interface {
	Enqueue(roomCode, document string)
}

// CreateResult reports what POST /api/rooms did for a code.
type CreateResult struct {
	RoomCode    string `json:"room_code"`
	RoomID      string `json:"room_id"`
	HostID      string `json:"host_id"`
	Restored    bool   `json:"restored"`
	HasDocument bool   `json:"has_document"`
}

// Manager owns room lifecycle: creation, revival from persisted snapshots
// and idle eviction.
type Manager struct {
	registry    *Registry
	store       SnapshotStore
	queue       SnapshotQueue
	logger      *utils.Logger
	idleTimeout time.Duration
}

func NewManager(store SnapshotStore, queue SnapshotQueue, logger *utils.Logger, idleTimeout time.Duration) *Manager {
	return &Manager{
		registry:    NewRegistry(),
		store:       store,
		queue:       queue,
		logger:      logger,
		idleTimeout: idleTimeout,
	}
}

// Registry exposes the live room map for health reporting and the workspace
// deletion cascade.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// EnsureExists returns the live room for code, reviving it from a persisted
// snapshot or a workspace record when needed. Unknown codes that look like
// client-generated UUIDs are rejected so typos do not mint rooms.
func (m *Manager) EnsureExists(ctx context.Context, code string) (*Room, error) {
	return m.ensureExists(ctx, code, "")
}

// ensureExists is EnsureExists with a host hint: when the join minting the
// room comes from a peer declaring itself host, that peer's id becomes the
// room's host_id. The hint never displaces the host of a live room.
func (m *Manager) ensureExists(ctx context.Context, code, hostHint string) (*Room, error) {
	if room, ok := m.registry.Get(code); ok {
		return room, nil
	}

	snap, err := m.store.FindRoomSnapshot(ctx, code)
	if err != nil {
		return nil, err
	}

	var snapshot *string
	if snap != nil {
		snapshot = &snap.Document
	} else {
		ws, err := m.store.FindWorkspaceByRoomCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if ws == nil {
			if looksLikeUUID(code) {
				return nil, ErrRoomNotFound
			}
			// Short ad-hoc codes are allowed to create rooms on first join.
		}
	}

	hostID := hostHint
	if hostID == "" {
		hostID = newHostID()
	}
	room := NewRoom(uuid.NewString(), hostID, snapshot)
	existing, inserted := m.registry.InsertIfAbsent(code, room)
	if inserted && snapshot != nil {
		m.logger.Info(ctx, "room %s revived from snapshot", code)
	}
	return existing, nil
}

// CreateRoom handles POST /api/rooms. It is idempotent: an already-live room
// is reported back untouched, a persisted snapshot restores the document and
// a fresh code mints an empty room.
func (m *Manager) CreateRoom(ctx context.Context, desiredCode, desiredHostID string) (CreateResult, error) {
	code := strings.TrimSpace(desiredCode)
	if code == "" {
		code = GenerateRoomCode()
	}

	if room, ok := m.registry.Get(code); ok {
		_, hasDoc := room.Snapshot()
		return CreateResult{
			RoomCode:    code,
			RoomID:      room.ID,
			HostID:      room.HostID,
			Restored:    true,
			HasDocument: hasDoc,
		}, nil
	}

	snap, err := m.store.FindRoomSnapshot(ctx, code)
	if err != nil {
		return CreateResult{}, err
	}

	hostID := strings.TrimSpace(desiredHostID)
	if hostID == "" {
		hostID = newHostID()
	}

	var snapshot *string
	if snap != nil {
		snapshot = &snap.Document
	}

	room := NewRoom(uuid.NewString(), hostID, snapshot)
	existing, inserted := m.registry.InsertIfAbsent(code, room)
	if !inserted {
		// Lost the race; report the winner.
		_, hasDoc := existing.Snapshot()
		return CreateResult{
			RoomCode:    code,
			RoomID:      existing.ID,
			HostID:      existing.HostID,
			Restored:    true,
			HasDocument: hasDoc,
		}, nil
	}

	m.logger.Info(ctx, "room %s created (restored=%t)", code, snap != nil)
	return CreateResult{
		RoomCode:    code,
		RoomID:      room.ID,
		HostID:      room.HostID,
		Restored:    snap != nil,
		HasDocument: snap != nil,
	}, nil
}

// RoomInfo returns the current state of a live room without reviving it.
func (m *Manager) RoomInfo(code string) (Info, bool) {
	room, ok := m.registry.Get(code)
	if !ok {
		return Info{}, false
	}
	return room.Info(), true
}

// StartSweeper launches the idle eviction loop. A zero idle timeout disables
// eviction entirely.
func (m *Manager) StartSweeper(ctx context.Context) {
	if m.idleTimeout <= 0 {
		m.logger.Info(ctx, "room eviction disabled")
		return
	}
	go m.sweep(ctx)
}

func (m *Manager) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for code, room := range m.registry.Snapshot() {
				if !room.closeIfIdle(now, m.idleTimeout) {
					continue
				}
				if doc, ok := room.Snapshot(); ok && m.queue != nil {
					m.queue.Enqueue(code, doc)
				}
				m.registry.Remove(code, room)
				roomsEvicted.Inc()
				m.logger.Info(ctx, "idle room %s evicted", code)
			}
		}
	}
}

// GenerateRoomCode mints a six character code from the unambiguous alphabet.
func GenerateRoomCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String()
}

func newHostID() string {
	return "host_" + uuid.NewString()[:8]
}

// looksLikeUUID reports whether a code has the shape of a client-generated
// UUID rather than a short shareable room code.
func looksLikeUUID(code string) bool {
	return len(code) == 36 && strings.Contains(code, "-")
}
