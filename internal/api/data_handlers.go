package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/db"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

// authorizeWorkspace resolves the {ws} path segment and checks the caller
// can touch its data. It writes the error response itself on failure.
func (s *Server) authorizeWorkspace(w http.ResponseWriter, req *http.Request) (primitive.ObjectID, bool) {
	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return primitive.NilObjectID, false
	}

	wsID, err := primitive.ObjectIDFromHex(req.PathValue("ws"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid workspace id")
		return primitive.NilObjectID, false
	}

	ws, err := s.db.FindWorkspaceByID(req.Context(), wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return primitive.NilObjectID, false
	}
	if ws == nil {
		utils.RespondError(w, http.StatusNotFound, "Workspace not found")
		return primitive.NilObjectID, false
	}
	if !s.hasWorkspaceAccess(req.Context(), ws, userID) {
		utils.RespondError(w, http.StatusForbidden, "No access to this workspace")
		return primitive.NilObjectID, false
	}
	return wsID, true
}

// pathID resolves the {id} path segment.
func pathID(w http.ResponseWriter, req *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

// decodeUpdates reads an arbitrary JSON body into a $set document, dropping
// fields that must never change through an update.
func decodeUpdates(req *http.Request) (bson.M, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
		return nil, err
	}
	delete(raw, "_id")
	delete(raw, "id")
	delete(raw, "workspace_id")
	raw["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	return bson.M(raw), nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Tasks

func (s *Server) handleListTasks(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	q := req.URL.Query()
	filter := db.TaskFilter{
		Status:          q.Get("status"),
		Project:         q.Get("project"),
		AssigneeID:      q.Get("assignee_id"),
		SprintID:        q.Get("sprint_id"),
		Search:          q.Get("search"),
		IncludeArchived: q.Get("include_archived") == "true",
	}

	tasks, err := s.db.ListTasks(req.Context(), wsID, filter)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	var task models.Task
	if err := json.NewDecoder(req.Body).Decode(&task); err != nil || task.Title == "" {
		utils.RespondError(w, http.StatusBadRequest, "Task title is required")
		return
	}
	task.ID = primitive.NilObjectID
	task.WorkspaceID = wsID
	task.CreatedAt = nowStamp()
	task.UpdatedAt = task.CreatedAt
	if task.Status == "" {
		task.Status = "todo"
	}

	if err := s.db.CreateTask(req.Context(), &task); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create task")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "task": task})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	updates, err := decodeUpdates(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.db.UpdateTask(req.Context(), id, wsID, updates)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update task")
		return
	}
	if !updated {
		utils.RespondError(w, http.StatusNotFound, "Task not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	deleted, err := s.db.DeleteTask(req.Context(), id, wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete task")
		return
	}
	if !deleted {
		utils.RespondError(w, http.StatusNotFound, "Task not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Projects

func (s *Server) handleListProjects(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	projects, err := s.db.ListProjects(req.Context(), wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	var project models.Project
	if err := json.NewDecoder(req.Body).Decode(&project); err != nil || project.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "Project name is required")
		return
	}
	project.ID = primitive.NilObjectID
	project.WorkspaceID = wsID
	project.CreatedAt = nowStamp()

	if err := s.db.CreateProject(req.Context(), &project); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "project": project})
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	updates, err := decodeUpdates(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.db.UpdateProject(req.Context(), id, wsID, updates)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}
	if !updated {
		utils.RespondError(w, http.StatusNotFound, "Project not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	deleted, err := s.db.DeleteProject(req.Context(), id, wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete project")
		return
	}
	if !deleted {
		utils.RespondError(w, http.StatusNotFound, "Project not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Assignees

func (s *Server) handleListAssignees(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	assignees, err := s.db.ListAssignees(req.Context(), wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "assignees": assignees})
}

func (s *Server) handleCreateAssignee(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	var assignee models.Assignee
	if err := json.NewDecoder(req.Body).Decode(&assignee); err != nil || assignee.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "Assignee name is required")
		return
	}
	assignee.ID = primitive.NilObjectID
	assignee.WorkspaceID = wsID
	assignee.CreatedAt = nowStamp()

	if err := s.db.CreateAssignee(req.Context(), &assignee); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create assignee")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "assignee": assignee})
}

func (s *Server) handleUpdateAssignee(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	updates, err := decodeUpdates(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.db.UpdateAssignee(req.Context(), id, wsID, updates)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update assignee")
		return
	}
	if !updated {
		utils.RespondError(w, http.StatusNotFound, "Assignee not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDeleteAssignee(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	deleted, err := s.db.DeleteAssignee(req.Context(), id, wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete assignee")
		return
	}
	if !deleted {
		utils.RespondError(w, http.StatusNotFound, "Assignee not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Sprints

func (s *Server) handleListSprints(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	sprints, err := s.db.ListSprints(req.Context(), wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sprints": sprints})
}

func (s *Server) handleCreateSprint(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}

	var sprint models.Sprint
	if err := json.NewDecoder(req.Body).Decode(&sprint); err != nil || sprint.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "Sprint name is required")
		return
	}
	sprint.ID = primitive.NilObjectID
	sprint.WorkspaceID = wsID
	sprint.CreatedAt = nowStamp()

	if err := s.db.CreateSprint(req.Context(), &sprint); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create sprint")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sprint": sprint})
}

func (s *Server) handleUpdateSprint(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	updates, err := decodeUpdates(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := s.db.UpdateSprint(req.Context(), id, wsID, updates)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update sprint")
		return
	}
	if !updated {
		utils.RespondError(w, http.StatusNotFound, "Sprint not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDeleteSprint(w http.ResponseWriter, req *http.Request) {
	wsID, ok := s.authorizeWorkspace(w, req)
	if !ok {
		return
	}
	id, ok := pathID(w, req)
	if !ok {
		return
	}

	deleted, err := s.db.DeleteSprint(req.Context(), id, wsID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete sprint")
		return
	}
	if !deleted {
		utils.RespondError(w, http.StatusNotFound, "Sprint not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
