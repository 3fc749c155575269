package rooms

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

type fakeStore struct {
	snapshots  map[string]string
	workspaces map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[string]string), workspaces: make(map[string]bool)}
}

func (f *fakeStore) FindRoomSnapshot(_ context.Context, roomCode string) (*models.RoomSnapshot, error) {
	doc, ok := f.snapshots[roomCode]
	if !ok {
		return nil, nil
	}
	return &models.RoomSnapshot{RoomCode: roomCode, Document: doc}, nil
}

func (f *fakeStore) FindWorkspaceByRoomCode(_ context.Context, roomCode string) (*models.Workspace, error) {
	if !f.workspaces[roomCode] {
		return nil, nil
	}
	return &models.Workspace{RoomCode: roomCode}, nil
}

type fakeQueue struct {
	codes []string
	docs  []string
}

func (f *fakeQueue) Enqueue(roomCode, document string) {
	f.codes = append(f.codes, roomCode)
	f.docs = append(f.docs, document)
}

func newTestManager(store *fakeStore, queue SnapshotQueue, idle time.Duration) *Manager {
	return NewManager(store, queue, utils.NewLogger("error"), idle)
}

func TestEnsureExistsCreatesShortCodeRooms(t *testing.T) {
	m := newTestManager(newFakeStore(), nil, time.Hour)

	room, err := m.EnsureExists(context.Background(), "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if room == nil {
		t.Fatal("no room returned")
	}

	again, err := m.EnsureExists(context.Background(), "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if again != room {
		t.Fatal("second lookup minted a different room")
	}
}

func TestEnsureExistsRejectsUnknownUUIDCodes(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, nil, time.Hour)

	uuidCode := "0b7aa4ec-1c1a-44b4-9f67-2f4e8d1a6b01"
	if _, err := m.EnsureExists(context.Background(), uuidCode); err != ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	// Backed by a workspace the same code revives fine.
	store.workspaces[uuidCode] = true
	room, err := m.EnsureExists(context.Background(), uuidCode)
	if err != nil || room == nil {
		t.Fatalf("workspace-backed code failed to revive: %v", err)
	}
}

func TestEnsureExistsRevivesFromSnapshot(t *testing.T) {
	store := newFakeStore()
	store.snapshots["SAVED1"] = `{"tasks":[1]}`
	m := newTestManager(store, nil, time.Hour)

	room, err := m.EnsureExists(context.Background(), "SAVED1")
	if err != nil {
		t.Fatal(err)
	}
	doc, ok := room.Snapshot()
	if !ok || doc != `{"tasks":[1]}` {
		t.Fatalf("revived room lost its document: %q (ok=%t)", doc, ok)
	}
}

func TestCreateRoomIsIdempotent(t *testing.T) {
	m := newTestManager(newFakeStore(), nil, time.Hour)

	first, err := m.CreateRoom(context.Background(), "NEWONE", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Restored {
		t.Fatal("fresh room reported restored")
	}
	if !strings.HasPrefix(first.HostID, "host_") {
		t.Fatalf("unexpected host id: %s", first.HostID)
	}

	second, err := m.CreateRoom(context.Background(), "NEWONE", "host_other")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Restored {
		t.Fatal("existing room not reported restored")
	}
	if second.RoomID != first.RoomID || second.HostID != first.HostID {
		t.Fatalf("create mutated a live room: %+v vs %+v", first, second)
	}
}

func TestCreateRoomRestoresPersistedDocument(t *testing.T) {
	store := newFakeStore()
	store.snapshots["OLDROOM"] = "doc"
	m := newTestManager(store, nil, time.Hour)

	res, err := m.CreateRoom(context.Background(), "OLDROOM", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Restored || !res.HasDocument {
		t.Fatalf("persisted room not restored: %+v", res)
	}
}

func TestCreateRoomMintsCodeWhenEmpty(t *testing.T) {
	m := newTestManager(newFakeStore(), nil, time.Hour)

	res, err := m.CreateRoom(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.RoomCode) != codeLength {
		t.Fatalf("expected %d-char code, got %q", codeLength, res.RoomCode)
	}
	for _, c := range res.RoomCode {
		if !strings.ContainsRune(codeAlphabet, c) {
			t.Fatalf("code %q contains %q outside the alphabet", res.RoomCode, c)
		}
	}
}

func TestGenerateRoomCodeAvoidsAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateRoomCode()
		if len(code) != codeLength {
			t.Fatalf("wrong length: %q", code)
		}
		if strings.ContainsAny(code, "ILO01") {
			t.Fatalf("code %q contains an ambiguous character", code)
		}
	}
}

func TestEvictedRoomRevivesOnNextLookup(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	m := newTestManager(store, queue, time.Millisecond)

	room, err := m.EnsureExists(context.Background(), "IDLE01")
	if err != nil {
		t.Fatal(err)
	}
	room.SetSnapshot("p1", "last-doc")

	// Drive one sweep by hand: the room is idle past the threshold.
	if !room.closeIfIdle(time.Now().Add(time.Second), time.Millisecond) {
		t.Fatal("room should be idle")
	}
	if doc, ok := room.Snapshot(); ok {
		queue.Enqueue("IDLE01", doc)
	}
	m.registry.Remove("IDLE01", room)

	if len(queue.docs) != 1 || queue.docs[0] != "last-doc" {
		t.Fatalf("eviction did not enqueue the final document: %+v", queue.docs)
	}

	// The dead room rejects late joins; the next lookup mints a fresh one.
	if _, ok := room.Join(models.PeerInfo{ID: "late", JoinedAt: time.Now()}); ok {
		t.Fatal("join succeeded on an evicted room")
	}
	revived, err := m.EnsureExists(context.Background(), "IDLE01")
	if err != nil {
		t.Fatal(err)
	}
	if revived == room {
		t.Fatal("lookup returned the evicted room")
	}
}

func TestRegistryInsertIfAbsentFirstWins(t *testing.T) {
	rg := NewRegistry()
	r1 := NewRoom("id1", "h1", nil)
	r2 := NewRoom("id2", "h2", nil)

	got, inserted := rg.InsertIfAbsent("CODE", r1)
	if !inserted || got != r1 {
		t.Fatal("first insert should win")
	}
	got, inserted = rg.InsertIfAbsent("CODE", r2)
	if inserted || got != r1 {
		t.Fatal("second insert should lose to the first")
	}
	if rg.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", rg.Len())
	}

	// Remove only drops the exact room it was asked about.
	rg.Remove("CODE", r2)
	if _, ok := rg.Get("CODE"); !ok {
		t.Fatal("remove of a different pointer dropped the room")
	}
	rg.Remove("CODE", r1)
	if _, ok := rg.Get("CODE"); ok {
		t.Fatal("room still present after remove")
	}
}
