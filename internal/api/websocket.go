package api

import (
	"context"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/auth"
	"github.com/khunphaen/sync-server/internal/rooms"
)

// handleWebSocket upgrades the connection and hands it to a session. The
// token is optional at upgrade time; rooms backed by a workspace enforce it
// when the peer tries to join.
func (s *Server) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var userID primitive.ObjectID
	authed := false
	if token := auth.ExtractToken(req); token != "" {
		if claims, err := s.jwt.ValidateToken(token); err == nil {
			if id, err := primitive.ObjectIDFromHex(claims.Subject); err == nil {
				userID = id
				authed = true
			}
		}
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Error(ctx, "websocket upgrade failed: %v", err)
		return
	}

	s.logger.Debug(ctx, "websocket connected from %s", req.RemoteAddr)

	session := rooms.NewSession(s.manager, s.system, conn, s.logger)
	session.SetJoinGuard(func(ctx context.Context, roomCode string) error {
		ws, err := s.db.FindWorkspaceByRoomCode(ctx, roomCode)
		if err != nil {
			return errors.New("Failed to join room")
		}
		if ws == nil {
			// Ad-hoc room, joinable by code alone.
			return nil
		}
		if !authed {
			return errors.New("Authentication required")
		}
		if !s.hasWorkspaceAccess(ctx, ws, userID) {
			return errors.New("Access denied")
		}
		return nil
	})

	// The session outlives the HTTP handler's request context.
	go session.Run(context.Background())
}
