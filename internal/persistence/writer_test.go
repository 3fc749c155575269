package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/khunphaen/sync-server/internal/utils"
)

type fakeSnapshotStore struct {
	mu      sync.Mutex
	writes  map[string][]string
	failFor int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{writes: make(map[string][]string)}
}

func (f *fakeSnapshotStore) UpsertRoomSnapshot(_ context.Context, roomCode, document string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor > 0 {
		f.failFor--
		return errors.New("store unavailable")
	}
	f.writes[roomCode] = append(f.writes[roomCode], document)
	return nil
}

func (f *fakeSnapshotStore) documents(roomCode string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes[roomCode]))
	copy(out, f.writes[roomCode])
	return out
}

func TestWriterPersistsEnqueuedDocument(t *testing.T) {
	store := newFakeSnapshotStore()
	w := NewSnapshotWriter(store, utils.NewLogger("error"))
	w.Start(context.Background())

	w.Enqueue("ROOM01", "doc-1")
	w.Stop()

	docs := store.documents("ROOM01")
	if len(docs) != 1 || docs[0] != "doc-1" {
		t.Fatalf("expected one write of doc-1, got %+v", docs)
	}
}

func TestWriterCoalescesToLatestDocument(t *testing.T) {
	store := newFakeSnapshotStore()
	w := NewSnapshotWriter(store, utils.NewLogger("error"))
	w.Start(context.Background())

	// A burst of syncs for one room before any flush can run.
	for i := 0; i < 50; i++ {
		w.Enqueue("ROOM01", "stale")
	}
	w.Enqueue("ROOM01", "final")
	w.Stop()

	docs := store.documents("ROOM01")
	if len(docs) == 0 {
		t.Fatal("nothing persisted")
	}
	if docs[len(docs)-1] != "final" {
		t.Fatalf("latest document lost, writes were %+v", docs)
	}
	if len(docs) > 2 {
		t.Fatalf("burst should coalesce, got %d writes", len(docs))
	}
}

func TestWriterKeepsRoomsIndependent(t *testing.T) {
	store := newFakeSnapshotStore()
	w := NewSnapshotWriter(store, utils.NewLogger("error"))
	w.Start(context.Background())

	w.Enqueue("ROOM01", "a")
	w.Enqueue("ROOM02", "b")
	w.Stop()

	if docs := store.documents("ROOM01"); len(docs) != 1 || docs[0] != "a" {
		t.Fatalf("ROOM01 writes: %+v", docs)
	}
	if docs := store.documents("ROOM02"); len(docs) != 1 || docs[0] != "b" {
		t.Fatalf("ROOM02 writes: %+v", docs)
	}
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	store := newFakeSnapshotStore()
	store.failFor = 2
	w := NewSnapshotWriter(store, utils.NewLogger("error"))
	w.Start(context.Background())

	w.Enqueue("ROOM01", "doc")
	w.Stop()

	docs := store.documents("ROOM01")
	if len(docs) != 1 || docs[0] != "doc" {
		t.Fatalf("expected write after retries, got %+v", docs)
	}
}

func TestWriterStopFlushesPending(t *testing.T) {
	store := newFakeSnapshotStore()
	w := NewSnapshotWriter(store, utils.NewLogger("error"))
	w.Start(context.Background())

	// Stop immediately after enqueueing; nothing may be lost.
	for i := 0; i < 10; i++ {
		w.Enqueue("ROOM01", "doc")
	}
	w.Stop()

	if docs := store.documents("ROOM01"); len(docs) == 0 {
		t.Fatal("pending document dropped on Stop")
	}
}

func TestWriterEnqueueAfterStopIsSafe(t *testing.T) {
	store := newFakeSnapshotStore()
	w := NewSnapshotWriter(store, utils.NewLogger("error"))
	w.Start(context.Background())
	w.Stop()

	done := make(chan struct{})
	go func() {
		w.Enqueue("ROOM01", "late")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked after Stop")
	}
}
