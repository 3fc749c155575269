package persistence

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/khunphaen/sync-server/internal/utils"
)

const (
	maxRetries     = 5
	initialBackoff = 100 * time.Millisecond
)

// flushInterval paces write-backs so rapid sync bursts for one room collapse
// into a single upsert.
const flushInterval = 200 * time.Millisecond

// SnapshotStore persists room documents. *db.Database satisfies it.
type SnapshotStore interface {
	UpsertRoomSnapshot(ctx context.Context, roomCode, document string) error
}

type pendingSnapshot struct {
	roomCode string
	document string
}

// SnapshotWriter persists room documents asynchronously. Writes for the same
// room coalesce while queued, so only the latest document per room reaches
// the store. Failures are retried with exponential backoff and otherwise
// logged; the in-memory room remains the source of truth.
type SnapshotWriter struct {
	store  SnapshotStore
	logger *utils.Logger

	queue chan pendingSnapshot
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	pending map[string]string
	order   []string
}

func NewSnapshotWriter(store SnapshotStore, logger *utils.Logger) *SnapshotWriter {
	return &SnapshotWriter{
		store:   store,
		logger:  logger,
		queue:   make(chan pendingSnapshot, 1000),
		done:    make(chan struct{}),
		pending: make(map[string]string),
	}
}

// Start begins the writer's flush loop.
func (sw *SnapshotWriter) Start(ctx context.Context) {
	sw.wg.Add(1)
	go sw.run(ctx)
}

// Stop flushes anything still pending and shuts the writer down.
func (sw *SnapshotWriter) Stop() {
	close(sw.done)
	sw.wg.Wait()
}

// Enqueue records a document for write-back. It never blocks the caller; a
// later Enqueue for the same room before the flush simply replaces the
// pending document.
func (sw *SnapshotWriter) Enqueue(roomCode, document string) {
	select {
	case sw.queue <- pendingSnapshot{roomCode: roomCode, document: document}:
	case <-sw.done:
	default:
		// Queue full: coalesce directly so the newest document still wins.
		sw.coalesce(roomCode, document)
	}
}

func (sw *SnapshotWriter) run(ctx context.Context) {
	defer sw.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.drain()
			sw.flush(context.Background())
			return

		case <-sw.done:
			sw.drain()
			sw.flush(context.Background())
			return

		case snap := <-sw.queue:
			sw.coalesce(snap.roomCode, snap.document)

		case <-ticker.C:
			sw.flush(ctx)
		}
	}
}

// coalesce stages the latest document for a room, preserving first-seen
// order across rooms.
func (sw *SnapshotWriter) coalesce(roomCode, document string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, ok := sw.pending[roomCode]; !ok {
		sw.order = append(sw.order, roomCode)
	}
	sw.pending[roomCode] = document
}

// drain empties the queue into the pending map without waiting.
func (sw *SnapshotWriter) drain() {
	for {
		select {
		case snap := <-sw.queue:
			sw.coalesce(snap.roomCode, snap.document)
		default:
			return
		}
	}
}

// flush writes every pending document, one upsert per room.
func (sw *SnapshotWriter) flush(ctx context.Context) {
	sw.mu.Lock()
	if len(sw.pending) == 0 {
		sw.mu.Unlock()
		return
	}
	batch := sw.pending
	order := sw.order
	sw.pending = make(map[string]string)
	sw.order = nil
	sw.mu.Unlock()

	for _, roomCode := range order {
		sw.writeSnapshot(ctx, roomCode, batch[roomCode])
	}
}

func (sw *SnapshotWriter) writeSnapshot(ctx context.Context, roomCode, document string) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := sw.store.UpsertRoomSnapshot(ctx, roomCode, document); err != nil {
			lastErr = err
			time.Sleep(initialBackoff * time.Duration(math.Pow(2, float64(i))))
			continue
		}
		return
	}
	sw.logger.Error(ctx, "failed to persist snapshot for room %s after %d retries: %v", roomCode, maxRetries, lastErr)
}
