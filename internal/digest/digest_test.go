package digest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

type fakeDigestStore struct {
	mu         sync.Mutex
	workspaces []models.Workspace
	tasks      map[primitive.ObjectID][]models.Task
	lastSent   map[primitive.ObjectID]time.Time
}

func newFakeDigestStore() *fakeDigestStore {
	return &fakeDigestStore{
		tasks:    make(map[primitive.ObjectID][]models.Task),
		lastSent: make(map[primitive.ObjectID]time.Time),
	}
}

func (f *fakeDigestStore) WorkspacesWithNotifications(context.Context) ([]models.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Workspace, len(f.workspaces))
	copy(out, f.workspaces)
	return out, nil
}

func (f *fakeDigestStore) TasksForDigest(_ context.Context, id primitive.ObjectID) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id], nil
}

func (f *fakeDigestStore) UpdateNotificationLastSent(_ context.Context, id primitive.ObjectID, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSent[id] = sentAt
	return nil
}

type webhookRecorder struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, string(body))
		status := r.status
		r.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	}
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

// mondayAt returns a Monday at the given UTC wallclock.
func mondayAt(hour, min int) time.Time {
	return time.Date(2026, 8, 24, hour, min, 0, 0, time.UTC)
}

func testWorkspace(url string) models.Workspace {
	return models.Workspace{
		ID:   primitive.NewObjectID(),
		Name: "Alpha Team",
		NotificationConfig: &models.NotificationConfig{
			WebhookURL: url,
			Enabled:    true,
			Days:       []int{1}, // Monday
			Time:       "09:00",
		},
	}
}

func TestDigestSentAtScheduledMinute(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newFakeDigestStore()
	ws := testWorkspace(server.URL)
	store.workspaces = []models.Workspace{ws}
	store.tasks[ws.ID] = []models.Task{
		{Title: "A", Status: "done"},
		{Title: "B", Status: "todo"},
	}

	s := NewScheduler(store, utils.NewLogger("error"), 0)
	s.runOnce(context.Background(), mondayAt(9, 0))

	if rec.count() != 1 {
		t.Fatalf("expected one webhook POST, got %d", rec.count())
	}

	var payload struct {
		Username string `json:"username"`
		Embeds   []struct {
			Description string `json:"description"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal([]byte(rec.bodies[0]), &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(payload.Embeds))
	}
	desc := payload.Embeds[0].Description
	if !strings.Contains(desc, "Completed Today (1)") {
		t.Fatalf("missing completed section: %q", desc)
	}
	if !strings.Contains(desc, "Pending Tasks (1)") {
		t.Fatalf("missing pending section: %q", desc)
	}
	if !strings.Contains(desc, "Daily Summary: Alpha Team") {
		t.Fatalf("missing header: %q", desc)
	}

	if _, ok := store.lastSent[ws.ID]; !ok {
		t.Fatal("last_sent_at not recorded")
	}
}

func TestDigestSkipsWrongDayAndTime(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newFakeDigestStore()
	ws := testWorkspace(server.URL)
	store.workspaces = []models.Workspace{ws}
	store.tasks[ws.ID] = []models.Task{{Title: "A", Status: "done"}}

	s := NewScheduler(store, utils.NewLogger("error"), 0)

	// Tuesday 09:00 and Monday 09:01 both miss the schedule.
	s.runOnce(context.Background(), mondayAt(9, 0).Add(24*time.Hour))
	s.runOnce(context.Background(), mondayAt(9, 1))

	if rec.count() != 0 {
		t.Fatalf("digest sent outside the schedule: %d posts", rec.count())
	}
}

func TestDigestIdempotenceWindow(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newFakeDigestStore()
	ws := testWorkspace(server.URL)
	recent := mondayAt(8, 30)
	ws.NotificationConfig.LastSentAt = &recent
	store.workspaces = []models.Workspace{ws}
	store.tasks[ws.ID] = []models.Task{{Title: "A", Status: "done"}}

	s := NewScheduler(store, utils.NewLogger("error"), 0)
	s.runOnce(context.Background(), mondayAt(9, 0))

	if rec.count() != 0 {
		t.Fatal("digest resent inside the guard window")
	}

	// A send from well before the window goes through.
	old := mondayAt(9, 0).Add(-2 * time.Hour)
	store.workspaces[0].NotificationConfig.LastSentAt = &old
	s.runOnce(context.Background(), mondayAt(9, 0))
	if rec.count() != 1 {
		t.Fatalf("stale last_sent_at should not block, got %d posts", rec.count())
	}
}

func TestDigestSkipsEmptyWorkspaces(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newFakeDigestStore()
	ws := testWorkspace(server.URL)
	store.workspaces = []models.Workspace{ws}

	s := NewScheduler(store, utils.NewLogger("error"), 0)
	s.runOnce(context.Background(), mondayAt(9, 0))

	if rec.count() != 0 {
		t.Fatal("digest sent for a workspace with no tasks")
	}
	if _, ok := store.lastSent[ws.ID]; ok {
		t.Fatal("last_sent_at recorded without a send")
	}
}

func TestDigestFailureLeavesLastSentUnchanged(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusInternalServerError}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newFakeDigestStore()
	ws := testWorkspace(server.URL)
	store.workspaces = []models.Workspace{ws}
	store.tasks[ws.ID] = []models.Task{{Title: "A", Status: "done"}}

	s := NewScheduler(store, utils.NewLogger("error"), 0)
	s.runOnce(context.Background(), mondayAt(9, 0))

	if rec.count() != 1 {
		t.Fatalf("expected one attempted POST, got %d", rec.count())
	}
	if _, ok := store.lastSent[ws.ID]; ok {
		t.Fatal("last_sent_at recorded for a failed send")
	}
}

func TestDigestRespectsUTCOffset(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler())
	defer server.Close()

	store := newFakeDigestStore()
	ws := testWorkspace(server.URL)
	store.workspaces = []models.Workspace{ws}
	store.tasks[ws.ID] = []models.Task{{Title: "A", Status: "done"}}

	// At UTC+7, Monday 09:00 local is Monday 02:00 UTC.
	s := NewScheduler(store, utils.NewLogger("error"), 7)
	s.runOnce(context.Background(), mondayAt(2, 0))

	if rec.count() != 1 {
		t.Fatalf("offset schedule missed: %d posts", rec.count())
	}
}

func TestComposeSummaryCapsAndIcons(t *testing.T) {
	var tasks []models.Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, models.Task{Title: "done-task", Status: "done"})
	}
	tasks = append(tasks,
		models.Task{Title: "rolling", Status: "in-progress"},
		models.Task{Title: "verifying", Status: "in-test"},
		models.Task{Title: "queued", Status: "todo"},
	)

	out := ComposeSummary("Alpha Team", tasks, mondayAt(9, 0))

	if !strings.Contains(out, "Completed Today (20)") {
		t.Fatalf("wrong completed count: %q", out)
	}
	if !strings.Contains(out, "... and 5 more") {
		t.Fatalf("missing overflow line: %q", out)
	}
	if !strings.Contains(out, "🔄 rolling") || !strings.Contains(out, "🧪 verifying") || !strings.Contains(out, "📝 queued") {
		t.Fatalf("missing status icons: %q", out)
	}
	if strings.Count(out, "• ✅") != 15 {
		t.Fatalf("completed list not capped at 15: %q", out)
	}
}
