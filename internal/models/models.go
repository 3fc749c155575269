package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account in the users collection
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Email        string             `bson:"email" json:"email"`
	Role         string             `bson:"role" json:"role"` // admin, user
	PasswordHash string             `bson:"password_hash,omitempty" json:"-"`
	SetupToken   string             `bson:"setup_token,omitempty" json:"-"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// UserProfile holds display information separate from credentials
type UserProfile struct {
	ProfileID string `bson:"profile_id" json:"profile_id"`
	UserID    string `bson:"user_id" json:"user_id"`
	FirstName string `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Nickname  string `bson:"nickname,omitempty" json:"nickname,omitempty"`
	Position  string `bson:"position,omitempty" json:"position,omitempty"`
}

// NotificationConfig controls the per-workspace digest schedule
type NotificationConfig struct {
	WebhookURL string     `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	Enabled    bool       `bson:"enabled" json:"enabled"`
	Days       []int      `bson:"days" json:"days"` // 0=Sun .. 6=Sat
	Time       string     `bson:"time" json:"time"` // "HH:MM" local wallclock
	LastSentAt *time.Time `bson:"last_sent_at,omitempty" json:"last_sent_at,omitempty"`
}

// Workspace is an owner-scoped container bound to exactly one room code
type Workspace struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Name               string              `bson:"name" json:"name"`
	OwnerID            primitive.ObjectID  `bson:"owner_id" json:"owner_id"`
	RoomCode           string              `bson:"room_code" json:"room_code"`
	NotificationConfig *NotificationConfig `bson:"notification_config,omitempty" json:"notification_config,omitempty"`
	CreatedAt          time.Time           `bson:"created_at" json:"created_at"`
}

// RoomSnapshot is the persisted last-known document for a room code
type RoomSnapshot struct {
	RoomCode string    `bson:"room_code" json:"room_code"`
	Document string    `bson:"document" json:"document"`
	LastSync time.Time `bson:"last_sync" json:"last_sync"`
}

// Task is a workspace-scoped task document
type Task struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	WorkspaceID     primitive.ObjectID `bson:"workspace_id" json:"workspace_id"`
	Title           string             `bson:"title" json:"title"`
	Project         string             `bson:"project,omitempty" json:"project,omitempty"`
	DurationMinutes int64              `bson:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	Date            string             `bson:"date" json:"date"`
	EndDate         string             `bson:"end_date,omitempty" json:"end_date,omitempty"`
	Status          string             `bson:"status" json:"status"` // todo, in-progress, in-test, done
	Category        string             `bson:"category,omitempty" json:"category,omitempty"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	AssigneeIDs     []string           `bson:"assignee_ids,omitempty" json:"assignee_ids,omitempty"`
	SprintID        string             `bson:"sprint_id,omitempty" json:"sprint_id,omitempty"`
	IsArchived      bool               `bson:"is_archived" json:"is_archived"`
	Checklist       bson.Raw           `bson:"checklist,omitempty" json:"checklist,omitempty"`
	CreatedAt       string             `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt       string             `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Project is a workspace-scoped project document
type Project struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	WorkspaceID primitive.ObjectID `bson:"workspace_id" json:"workspace_id"`
	Name        string             `bson:"name" json:"name"`
	RepoURL     string             `bson:"repo_url,omitempty" json:"repo_url,omitempty"`
	CreatedAt   string             `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// Assignee is a workspace-scoped assignee document; UserID links it to an
// account for the workspace access check.
type Assignee struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	WorkspaceID primitive.ObjectID `bson:"workspace_id" json:"workspace_id"`
	Name        string             `bson:"name" json:"name"`
	Color       string             `bson:"color,omitempty" json:"color,omitempty"`
	UserID      string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	CreatedAt   string             `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// Sprint is a workspace-scoped sprint document
type Sprint struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	WorkspaceID primitive.ObjectID `bson:"workspace_id" json:"workspace_id"`
	Name        string             `bson:"name" json:"name"`
	Goal        string             `bson:"goal,omitempty" json:"goal,omitempty"`
	StartDate   string             `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate     string             `bson:"end_date,omitempty" json:"end_date,omitempty"`
	CreatedAt   string             `bson:"created_at,omitempty" json:"created_at,omitempty"`
}
