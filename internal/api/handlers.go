package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/auth"
	"github.com/khunphaen/sync-server/internal/models"
	"github.com/khunphaen/sync-server/internal/utils"
)

func (s *Server) handleRoot(w http.ResponseWriter, req *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Khun Phaen Sync Server",
		"status":  "running",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"rooms":     s.manager.Registry().Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type inviteRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Password string `json:"password,omitempty"`
}

// handleInvite creates a new account. The very first invite bootstraps the
// system and is gated by the X-Setup-Token header instead of an admin token.
func (s *Server) handleInvite(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var payload inviteRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Email == "" {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count, err := s.db.CountUsers(ctx)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	if count == 0 {
		if s.cfg.InitialSetupToken == "" || req.Header.Get("X-Setup-Token") != s.cfg.InitialSetupToken {
			utils.RespondError(w, http.StatusForbidden,
				"System initialization requires a valid setup token. Check INITIAL_SETUP_TOKEN in environment.")
			return
		}
	} else if !s.requireAdmin(w, req) {
		return
	}

	existing, err := s.db.FindUserByEmail(ctx, payload.Email)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if existing != nil {
		utils.RespondError(w, http.StatusBadRequest, "Email already registered")
		return
	}

	role := payload.Role
	if role == "" {
		role = "user"
	}
	// The bootstrap account is always an admin.
	if count == 0 {
		role = "admin"
	}

	user := &models.User{
		UserID:    uuid.NewString(),
		Email:     payload.Email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}

	activated := false
	if payload.Password != "" {
		hash, err := auth.HashPassword(payload.Password)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}
		user.PasswordHash = hash
		user.IsActive = true
		activated = true
	} else {
		user.SetupToken = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	if err := s.db.CreateUser(ctx, user); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	profile := &models.UserProfile{
		ProfileID: uuid.NewString(),
		UserID:    user.UserID,
		Nickname:  payload.Nickname,
	}
	if err := s.db.CreateProfile(ctx, profile); err != nil {
		s.logger.Error(ctx, "failed to create profile for %s: %v", payload.Email, err)
	}

	s.logger.Info(ctx, "user invited: %s (role=%s, activated=%t)", payload.Email, role, activated)

	if activated {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "User account created and activated successfully",
			"activated": true,
		})
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Invitation created successfully",
		"setup_link": "/setup-password?token=" + user.SetupToken,
	})
}

func (s *Server) handleSetupInfo(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		utils.RespondError(w, http.StatusBadRequest, "Token is required")
		return
	}

	user, err := s.db.FindUserBySetupToken(req.Context(), token)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if user == nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid or expired setup token")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "email": user.Email})
}

type setupPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleSetupPassword(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var payload setupPasswordRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Token == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "Token and password are required")
		return
	}

	user, err := s.db.FindUserBySetupToken(ctx, payload.Token)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if user == nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid or expired setup token")
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	user.PasswordHash = hash
	user.IsActive = true
	user.SetupToken = ""
	if err := s.db.UpdateUser(ctx, user); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to activate account")
		return
	}

	s.logger.Info(ctx, "account activated: %s", user.Email)
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "email": user.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var payload loginRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.db.FindUserByEmail(ctx, payload.Email)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if user == nil || !user.IsActive {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, payload.Password) {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.jwt.GenerateToken(user.ID.Hex(), user.Role)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	profile, err := s.db.FindProfileByUserID(ctx, user.UserID)
	if err != nil {
		s.logger.Error(ctx, "failed to load profile for %s: %v", user.Email, err)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      user.ID.Hex(),
		"user_id": user.UserID,
		"email":   user.Email,
		"role":    user.Role,
		"token":   token,
		"profile": profile,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, req *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not logged in")
		return
	}

	user, err := s.db.FindUserByID(ctx, userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if user == nil {
		utils.RespondError(w, http.StatusUnauthorized, "User not found")
		return
	}

	profile, err := s.db.FindProfileByUserID(ctx, user.UserID)
	if err != nil {
		s.logger.Error(ctx, "failed to load profile for %s: %v", user.Email, err)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      user.ID.Hex(),
		"user_id": user.UserID,
		"email":   user.Email,
		"role":    user.Role,
		"profile": profile,
	})
}

type updateProfileRequest struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Position  string `json:"position,omitempty"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, ok := s.userID(req)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload updateProfileRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.db.FindUserByID(ctx, userID)
	if err != nil || user == nil {
		utils.RespondError(w, http.StatusUnauthorized, "User not found")
		return
	}

	profile := &models.UserProfile{
		UserID:    user.UserID,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Nickname:  payload.Nickname,
		Position:  payload.Position,
	}
	if err := s.db.UpdateProfile(ctx, profile); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleListUsers(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if !s.requireAdmin(w, req) {
		return
	}

	users, err := s.db.ListUsers(ctx)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		profile, _ := s.db.FindProfileByUserID(ctx, u.UserID)
		out = append(out, map[string]interface{}{
			"id":        u.ID.Hex(),
			"user_id":   u.UserID,
			"email":     u.Email,
			"role":      u.Role,
			"is_active": u.IsActive,
			"profile":   profile,
		})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": out})
}

type updateUserRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if !s.requireAdmin(w, req) {
		return
	}

	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var payload updateUserRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || (payload.Role != "admin" && payload.Role != "user") {
		utils.RespondError(w, http.StatusBadRequest, "Role must be admin or user")
		return
	}

	if err := s.db.UpdateUserRole(ctx, id, payload.Role); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if !s.requireAdmin(w, req) {
		return
	}

	id, err := primitive.ObjectIDFromHex(req.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := s.db.FindUserByID(ctx, id)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if user == nil {
		utils.RespondError(w, http.StatusNotFound, "User not found")
		return
	}

	if _, err := s.db.DeleteUser(ctx, id); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}
	if err := s.db.DeleteProfileByUserID(ctx, user.UserID); err != nil {
		s.logger.Error(ctx, "failed to delete profile for %s: %v", user.Email, err)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
