package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khunphaen/sync-server/internal/auth"
	"github.com/khunphaen/sync-server/internal/config"
	"github.com/khunphaen/sync-server/internal/middleware"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/rooms"
	"github.com/khunphaen/sync-server/internal/utils"
)

type stubStore struct{}

func (stubStore) FindRoomSnapshot(context.Context, string) (*models.RoomSnapshot, error) {
	return nil, nil
}

func (stubStore) FindWorkspaceByRoomCode(context.Context, string) (*models.Workspace, error) {
	return nil, nil
}

// newTestServer wires a server around an in-memory room manager; the
// database stays nil, so only database-free routes may be exercised.
func newTestServer() *Server {
	cfg := &config.Config{Port: "0", CORSOrigin: "http://localhost:5173"}
	logger := utils.NewLogger("error")
	manager := rooms.NewManager(stubStore{}, nil, logger, time.Hour)
	return NewServer(cfg, logger, nil, auth.NewJWTManager("test"), manager, rooms.NewSystemBus(), middleware.NewRateLimiter(nil))
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
	var body struct {
		Status    string `json:"status"`
		Rooms     int    `json:"rooms"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Timestamp == "" {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}

func TestCreateRoomEndpoint(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"room_code":"HTTP01"}`))
	req.Header.Set("X-Real-IP", "10.1.1.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var result rooms.CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.RoomCode != "HTTP01" || result.Restored {
		t.Fatalf("unexpected create result: %+v", result)
	}

	// Creating again reports the live room.
	req = httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{"room_code":"HTTP01"}`))
	req.Header.Set("X-Real-IP", "10.1.1.1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var again rooms.CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &again); err != nil {
		t.Fatal(err)
	}
	if !again.Restored || again.RoomID != result.RoomID {
		t.Fatalf("second create did not report the live room: %+v", again)
	}
}

func TestCreateRoomRateLimited(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(`{}`))
		req.Header.Set("X-Real-IP", "10.2.2.2")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", last)
	}
}

func TestGetRoomInfoUnknownUUIDIs404(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/0b7aa4ec-1c1a-44b4-9f67-2f4e8d1a6b01", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown uuid code, got %d", rec.Code)
	}
}

func TestGetRoomInfoRevivesShortCodes(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/FRESH1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("short code lookup returned %d", rec.Code)
	}
	var body struct {
		RoomCode    string            `json:"room_code"`
		HostID      string            `json:"host_id"`
		Peers       []models.PeerInfo `json:"peers"`
		HasDocument bool              `json:"has_document"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.RoomCode != "FRESH1" || len(body.Peers) != 0 || body.HasDocument {
		t.Fatalf("unexpected room info: %s", rec.Body.String())
	}
}

func TestWorkspaceSubresourceRouting(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	// Both subresource shapes share one wildcard route; each must resolve to
	// its handler, which rejects the anonymous caller instead of 404ing.
	for _, path := range []string{
		"/api/workspaces/access/SOMECODE",
		"/api/workspaces/64b0c2f3a1d2e3f4a5b6c7d8/notifications",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s returned %d", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/64b0c2f3a1d2e3f4a5b6c7d8/bogus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown subresource returned %d", rec.Code)
	}
}

func TestAuthEndpointsRejectAnonymous(t *testing.T) {
	s := newTestServer()
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous user list returned %d", rec.Code)
	}
}
