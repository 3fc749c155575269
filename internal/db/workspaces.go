package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/khunphaen/sync-server/internal/models"
)

// Workspace queries
func (db *Database) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	defer db.observe(ctx, "workspaces.insert", time.Now())
	res, err := db.col(colWorkspaces).InsertOne(ctx, ws)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		ws.ID = oid
	}
	return nil
}

func (db *Database) FindWorkspaceByID(ctx context.Context, id primitive.ObjectID) (*models.Workspace, error) {
	defer db.observe(ctx, "workspaces.find_by_id", time.Now())
	var ws models.Workspace
	err := db.col(colWorkspaces).FindOne(ctx, bson.M{"_id": id}).Decode(&ws)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (db *Database) FindWorkspaceByRoomCode(ctx context.Context, roomCode string) (*models.Workspace, error) {
	defer db.observe(ctx, "workspaces.find_by_room_code", time.Now())
	var ws models.Workspace
	err := db.col(colWorkspaces).FindOne(ctx, bson.M{"room_code": roomCode}).Decode(&ws)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// FindWorkspacesForUser returns workspaces the user owns plus any whose IDs
// are in assignedIDs (workspaces where the user is listed as an assignee).
func (db *Database) FindWorkspacesForUser(ctx context.Context, ownerID primitive.ObjectID, assignedIDs []primitive.ObjectID) ([]models.Workspace, error) {
	defer db.observe(ctx, "workspaces.find_for_user", time.Now())
	filter := bson.M{"owner_id": ownerID}
	if len(assignedIDs) > 0 {
		filter = bson.M{"$or": bson.A{
			bson.M{"owner_id": ownerID},
			bson.M{"_id": bson.M{"$in": assignedIDs}},
		}}
	}
	cur, err := db.col(colWorkspaces).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var workspaces []models.Workspace
	if err := cur.All(ctx, &workspaces); err != nil {
		return nil, err
	}
	return workspaces, nil
}

func (db *Database) UpdateWorkspaceName(ctx context.Context, id, ownerID primitive.ObjectID, name string) (bool, error) {
	defer db.observe(ctx, "workspaces.update_name", time.Now())
	res, err := db.col(colWorkspaces).UpdateOne(ctx,
		bson.M{"_id": id, "owner_id": ownerID},
		bson.M{"$set": bson.M{"name": name}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (db *Database) DeleteWorkspace(ctx context.Context, id, ownerID primitive.ObjectID) (bool, error) {
	defer db.observe(ctx, "workspaces.delete", time.Now())
	res, err := db.col(colWorkspaces).DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (db *Database) UpdateNotificationConfig(ctx context.Context, id, ownerID primitive.ObjectID, cfg *models.NotificationConfig) (bool, error) {
	defer db.observe(ctx, "workspaces.update_notifications", time.Now())
	res, err := db.col(colWorkspaces).UpdateOne(ctx,
		bson.M{"_id": id, "owner_id": ownerID},
		bson.M{"$set": bson.M{"notification_config": cfg}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// WorkspacesWithNotifications returns all workspaces with an enabled digest config.
func (db *Database) WorkspacesWithNotifications(ctx context.Context) ([]models.Workspace, error) {
	defer db.observe(ctx, "workspaces.with_notifications", time.Now())
	cur, err := db.col(colWorkspaces).Find(ctx, bson.M{"notification_config.enabled": true})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var workspaces []models.Workspace
	if err := cur.All(ctx, &workspaces); err != nil {
		return nil, err
	}
	return workspaces, nil
}

// UpdateNotificationLastSent records the last successful digest time in UTC.
func (db *Database) UpdateNotificationLastSent(ctx context.Context, id primitive.ObjectID, sentAt time.Time) error {
	defer db.observe(ctx, "workspaces.update_last_sent", time.Now())
	_, err := db.col(colWorkspaces).UpdateByID(ctx, id,
		bson.M{"$set": bson.M{"notification_config.last_sent_at": sentAt.UTC()}},
	)
	return err
}
