// Package api exposes the HTTP and WebSocket surface of the sync server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/auth"
	"github.com/khunphaen/sync-server/internal/config"
	"github.com/khunphaen/sync-server/internal/db"
	"github.com/khunphaen/sync-server/internal/middleware"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/rooms"
	"github.com/khunphaen/sync-server/internal/utils"
)

// Server bundles the handler dependencies.
type Server struct {
	cfg      *config.Config
	logger   *utils.Logger
	db       *db.Database
	jwt      *auth.JWTManager
	manager  *rooms.Manager
	system   *rooms.SystemBus
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
	started  time.Time
}

func NewServer(cfg *config.Config, logger *utils.Logger, database *db.Database, jwtManager *auth.JWTManager, manager *rooms.Manager, system *rooms.SystemBus, limiter *middleware.RateLimiter) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		jwt:     jwtManager,
		manager: manager,
		system:  system,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client runs on a different origin; CORS is enforced
			// on the REST surface and room access on join.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		started: time.Now(),
	}
}

// Routes builds the full route table with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/rooms", s.limiter.Middleware(http.HandlerFunc(s.handleCreateRoom)))
	mux.HandleFunc("GET /api/rooms/{code}", s.handleGetRoomInfo)

	mux.HandleFunc("POST /api/auth/invite", s.handleInvite)
	mux.HandleFunc("GET /api/auth/setup-info", s.handleSetupInfo)
	mux.HandleFunc("POST /api/auth/setup-password", s.handleSetupPassword)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)
	mux.HandleFunc("PUT /api/auth/me", s.handleUpdateMe)
	mux.HandleFunc("GET /api/auth/users", s.handleListUsers)
	mux.HandleFunc("PUT /api/auth/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/auth/users/{id}", s.handleDeleteUser)

	mux.HandleFunc("GET /api/workspaces", s.handleListWorkspaces)
	mux.HandleFunc("POST /api/workspaces", s.handleCreateWorkspace)
	mux.HandleFunc("PUT /api/workspaces/{id}", s.handleUpdateWorkspace)
	mux.HandleFunc("DELETE /api/workspaces/{id}", s.handleDeleteWorkspace)
	mux.HandleFunc("PUT /api/workspaces/{id}/notifications", s.handleUpdateNotifications)
	// GET /api/workspaces/access/{room_code} and GET /api/workspaces/{id}/notifications
	// conflict under ServeMux precedence (neither is more specific), so one
	// wildcard route dispatches both.
	mux.HandleFunc("GET /api/workspaces/{id}/{sub}", s.handleWorkspaceSubresource)

	mux.HandleFunc("GET /api/workspaces/{ws}/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/workspaces/{ws}/tasks", s.handleCreateTask)
	mux.HandleFunc("PUT /api/workspaces/{ws}/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/workspaces/{ws}/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("GET /api/workspaces/{ws}/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/workspaces/{ws}/projects", s.handleCreateProject)
	mux.HandleFunc("PUT /api/workspaces/{ws}/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/workspaces/{ws}/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/workspaces/{ws}/assignees", s.handleListAssignees)
	mux.HandleFunc("POST /api/workspaces/{ws}/assignees", s.handleCreateAssignee)
	mux.HandleFunc("PUT /api/workspaces/{ws}/assignees/{id}", s.handleUpdateAssignee)
	mux.HandleFunc("DELETE /api/workspaces/{ws}/assignees/{id}", s.handleDeleteAssignee)
	mux.HandleFunc("GET /api/workspaces/{ws}/sprints", s.handleListSprints)
	mux.HandleFunc("POST /api/workspaces/{ws}/sprints", s.handleCreateSprint)
	mux.HandleFunc("PUT /api/workspaces/{ws}/sprints/{id}", s.handleUpdateSprint)
	mux.HandleFunc("DELETE /api/workspaces/{ws}/sprints/{id}", s.handleDeleteSprint)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Setup-Token", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	var handler http.Handler = mux
	handler = middleware.TracingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	return c.Handler(handler)
}

// claims validates the request's token from the Authorization header or the
// session cookie.
func (s *Server) claims(req *http.Request) (*auth.Claims, bool) {
	token := auth.ExtractToken(req)
	if token == "" {
		return nil, false
	}
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// userID resolves the authenticated user's ObjectID.
func (s *Server) userID(req *http.Request) (primitive.ObjectID, bool) {
	claims, ok := s.claims(req)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// requireAdmin writes the error response itself when the caller is not an
// authenticated admin.
func (s *Server) requireAdmin(w http.ResponseWriter, req *http.Request) bool {
	claims, ok := s.claims(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return false
	}
	if claims.Role != "admin" {
		utils.RespondError(w, http.StatusForbidden, "Admin access required")
		return false
	}
	return true
}

// hasWorkspaceAccess reports whether the user owns the workspace or is
// linked to one of its assignees.
func (s *Server) hasWorkspaceAccess(ctx context.Context, ws *models.Workspace, userID primitive.ObjectID) bool {
	if ws.OwnerID == userID {
		return true
	}
	assigned, err := s.db.AssignedWorkspaceIDs(ctx, userID.Hex())
	if err != nil {
		return false
	}
	for _, id := range assigned {
		if id == ws.ID {
			return true
		}
	}
	return false
}
