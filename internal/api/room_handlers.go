package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/khunphaen/sync-server/internal/rooms"
	"github.com/khunphaen/sync-server/internal/utils"
)

type createRoomRequest struct {
	RoomCode string `json:"room_code,omitempty"`
	HostID   string `json:"host_id,omitempty"`
}

// handleCreateRoom creates a room, or reports the existing one when the code
// is already live or has a persisted snapshot. Rate limited.
func (s *Server) handleCreateRoom(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var payload createRoomRequest
	if req.Body != nil {
		// An empty body mints a fresh code.
		_ = json.NewDecoder(req.Body).Decode(&payload)
	}

	result, err := s.manager.CreateRoom(ctx, payload.RoomCode, payload.HostID)
	if err != nil {
		s.logger.Error(ctx, "room create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleGetRoomInfo returns a room's current state, reviving it from a
// persisted snapshot when needed.
func (s *Server) handleGetRoomInfo(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	code := req.PathValue("code")

	room, err := s.manager.EnsureExists(ctx, code)
	if errors.Is(err, rooms.ErrRoomNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		s.logger.Error(ctx, "room lookup failed for %s: %v", code, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to look up room")
		return
	}

	info := room.Info()
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"room_code":    code,
		"room_id":      info.RoomID,
		"host_id":      info.HostID,
		"created_at":   info.CreatedAt,
		"peers":        info.Peers,
		"has_document": info.HasSnapshot,
	})
}
