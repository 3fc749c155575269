package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

func (s *Server) handleListWorkspaces(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	assigned, err := s.db.AssignedWorkspaceIDs(ctx, userID.Hex())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	workspaces, err := s.db.FindWorkspacesForUser(ctx, userID, assigned)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "workspaces": workspaces})
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	var payload createWorkspaceRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "Workspace name is required")
		return
	}

	ws := &models.Workspace{
		Name:      payload.Name,
		OwnerID:   userID,
		RoomCode:  uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.CreateWorkspace(ctx, ws); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create workspace")
		return
	}

	s.logger.Info(ctx, "workspace created: %s (%s)", ws.Name, ws.ID.Hex())
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "workspace": ws})
}

func (s *Server) handleUpdateWorkspace(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid workspace id")
		return
	}

	var payload createWorkspaceRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "Workspace name is required")
		return
	}

	updated, err := s.db.UpdateWorkspaceName(ctx, id, userID, payload.Name)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update workspace")
		return
	}
	if !updated {
		utils.RespondError(w, http.StatusNotFound, "Workspace not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleDeleteWorkspace removes the workspace and cascades: the persisted
// room snapshot, the live room, and all dependent data documents.
func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid workspace id")
		return
	}

	ws, err := s.db.FindWorkspaceByID(ctx, id)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if ws == nil {
		utils.RespondError(w, http.StatusNotFound, "Workspace not found")
		return
	}

	deleted, err := s.db.DeleteWorkspace(ctx, id, userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete workspace")
		return
	}
	if !deleted {
		utils.RespondError(w, http.StatusNotFound, "Workspace not found")
		return
	}

	if err := s.db.DeleteRoomSnapshot(ctx, ws.RoomCode); err != nil {
		s.logger.Error(ctx, "failed to delete room snapshot %s: %v", ws.RoomCode, err)
	}
	s.manager.Registry().Evict(ws.RoomCode)
	if err := s.db.DeleteWorkspaceData(ctx, id); err != nil {
		s.logger.Error(ctx, "failed to delete workspace data %s: %v", id.Hex(), err)
	}

	s.logger.Info(ctx, "workspace deleted: %s (%s)", ws.Name, id.Hex())
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleGetNotifications(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid workspace id")
		return
	}

	ws, err := s.db.FindWorkspaceByID(ctx, id)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if ws == nil || ws.OwnerID != userID {
		utils.RespondError(w, http.StatusNotFound, "Workspace not found")
		return
	}

	cfg := ws.NotificationConfig
	if cfg == nil {
		cfg = &models.NotificationConfig{Days: []int{}, Time: "09:00"}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "config": cfg})
}

func (s *Server) handleUpdateNotifications(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid workspace id")
		return
	}

	var cfg models.NotificationConfig
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Clients never set the send marker; keep whatever is stored.
	if ws, err := s.db.FindWorkspaceByID(ctx, id); err == nil && ws != nil && ws.NotificationConfig != nil {
		cfg.LastSentAt = ws.NotificationConfig.LastSentAt
	}

	updated, err := s.db.UpdateNotificationConfig(ctx, id, userID, &cfg)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update notification config")
		return
	}
	if !updated {
		utils.RespondError(w, http.StatusNotFound, "Workspace not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "config": cfg})
}

// handleWorkspaceSubresource fans out the overlapping GET subresource
// shapes: /access/{room_code} and /{id}/notifications.
func (s *Server) handleWorkspaceSubresource(w http.ResponseWriter, req *http.Request) {
	sub := req.PathValue("sub")
	if req.PathValue("id") == "access" {
		req.SetPathValue("room_code", sub)
		s.handleWorkspaceAccess(w, req)
		return
	}
	if sub == "notifications" {
		s.handleGetNotifications(w, req)
		return
	}
	utils.RespondError(w, http.StatusNotFound, "Not found")
}

func (s *Server) handleWorkspaceAccess(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	ws, err := s.db.FindWorkspaceByRoomCode(ctx, req.PathValue("room_code"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if ws == nil {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "Workspace not found"})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"has_access": s.hasWorkspaceAccess(ctx, ws, userID),
	})
}
