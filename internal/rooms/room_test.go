package rooms

import (
	"testing"
	"time"

	"github.com/khunphaen/sync-server/internal/models"
)

func TestJoinPublishesAndReturnsInfo(t *testing.T) {
	room := NewRoom("room-1", "host_abc", nil)
	sub := room.Subscribe()
	defer sub.Close()

	info, ok := room.Join(models.PeerInfo{ID: "p1", JoinedAt: time.Now()})
	if !ok {
		t.Fatal("join failed on a fresh room")
	}
	if info.HostID != "host_abc" {
		t.Fatalf("wrong host id: %s", info.HostID)
	}
	if len(info.Peers) != 1 || info.Peers[0].ID != "p1" {
		t.Fatalf("info should contain the joining peer, got %+v", info.Peers)
	}

	ev := <-sub.Events()
	if ev.Kind != EventPeerJoined || ev.Peer.ID != "p1" {
		t.Fatalf("expected peer_joined for p1, got %+v", ev)
	}

	if _, hasDoc := room.Snapshot(); hasDoc {
		t.Fatal("fresh room should have no document")
	}
}

func TestLeaveMarksRoomEmpty(t *testing.T) {
	room := NewRoom("room-1", "host_abc", nil)
	room.Join(models.PeerInfo{ID: "p1", JoinedAt: time.Now()})

	if _, empty := room.EmptySince(); empty {
		t.Fatal("room with a peer should not be empty")
	}

	room.Leave("p1")
	if _, empty := room.EmptySince(); !empty {
		t.Fatal("room should be empty after the last peer leaves")
	}
	if room.PeerCount() != 0 {
		t.Fatalf("peer count should be 0, got %d", room.PeerCount())
	}

	// Leaving twice is a no-op.
	room.Leave("p1")
}

func TestSetSnapshotLastWriterWins(t *testing.T) {
	room := NewRoom("room-1", "host_abc", nil)
	sub := room.Subscribe()
	defer sub.Close()

	room.SetSnapshot("p1", "v1")
	room.SetSnapshot("p2", "v2")

	doc, ok := room.Snapshot()
	if !ok || doc != "v2" {
		t.Fatalf("expected v2, got %q (ok=%t)", doc, ok)
	}

	first := <-sub.Events()
	second := <-sub.Events()
	if first.Document != "v1" || second.Document != "v2" {
		t.Fatalf("updates out of order: %q then %q", first.Document, second.Document)
	}
	if second.From != "p2" {
		t.Fatalf("wrong sender on update: %s", second.From)
	}
}

func TestRestoredRoomCarriesDocument(t *testing.T) {
	doc := `{"tasks":[]}`
	room := NewRoom("room-1", "host_abc", &doc)

	got, ok := room.Snapshot()
	if !ok || got != doc {
		t.Fatalf("restored room lost its document: %q (ok=%t)", got, ok)
	}

	// An empty persisted document still counts as present.
	empty := ""
	room2 := NewRoom("room-2", "host_def", &empty)
	if _, ok := room2.Snapshot(); !ok {
		t.Fatal("empty document should still register as a snapshot")
	}
}

func TestInfoPeersSortedByJoinTime(t *testing.T) {
	room := NewRoom("room-1", "host_abc", nil)
	base := time.Now()
	room.Join(models.PeerInfo{ID: "z", JoinedAt: base})
	room.Join(models.PeerInfo{ID: "a", JoinedAt: base.Add(time.Second)})
	room.Join(models.PeerInfo{ID: "m", JoinedAt: base})

	info := room.Info()
	if len(info.Peers) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(info.Peers))
	}
	// Same join time ties break by id; later joins sort last.
	if info.Peers[0].ID != "m" || info.Peers[1].ID != "z" || info.Peers[2].ID != "a" {
		t.Fatalf("wrong order: %s %s %s", info.Peers[0].ID, info.Peers[1].ID, info.Peers[2].ID)
	}
}

func TestCloseIfIdle(t *testing.T) {
	room := NewRoom("room-1", "host_abc", nil)

	// Born empty, but not past the threshold yet.
	if room.closeIfIdle(time.Now(), time.Hour) {
		t.Fatal("room closed before the idle threshold")
	}

	if !room.closeIfIdle(time.Now().Add(2*time.Hour), time.Hour) {
		t.Fatal("idle room was not closed")
	}

	// A closed room rejects joins, forcing revival through the registry.
	if _, ok := room.Join(models.PeerInfo{ID: "p1", JoinedAt: time.Now()}); ok {
		t.Fatal("join succeeded on a closed room")
	}

	// Closing twice reports false.
	if room.closeIfIdle(time.Now().Add(3*time.Hour), time.Hour) {
		t.Fatal("room closed twice")
	}
}

func TestOccupiedRoomNeverCloses(t *testing.T) {
	room := NewRoom("room-1", "host_abc", nil)
	room.Join(models.PeerInfo{ID: "p1", JoinedAt: time.Now()})

	if room.closeIfIdle(time.Now().Add(24*time.Hour), time.Hour) {
		t.Fatal("room with a peer was closed")
	}
}
