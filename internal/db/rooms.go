package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/khunphaen/sync-server/internal/models"
)

// Room snapshot queries. The rooms collection is keyed by room_code and
// holds the last document pushed by any peer.
func (db *Database) FindRoomSnapshot(ctx context.Context, roomCode string) (*models.RoomSnapshot, error) {
	defer db.observe(ctx, "rooms.find_by_code", time.Now())
	var snap models.RoomSnapshot
	err := db.col(colRooms).FindOne(ctx, bson.M{"room_code": roomCode}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// UpsertRoomSnapshot is a per-key last-writer-wins upsert.
func (db *Database) UpsertRoomSnapshot(ctx context.Context, roomCode, document string) error {
	defer db.observe(ctx, "rooms.upsert", time.Now())
	_, err := db.col(colRooms).UpdateOne(ctx,
		bson.M{"room_code": roomCode},
		bson.M{"$set": bson.M{"document": document, "last_sync": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (db *Database) DeleteRoomSnapshot(ctx context.Context, roomCode string) error {
	defer db.observe(ctx, "rooms.delete", time.Now())
	_, err := db.col(colRooms).DeleteOne(ctx, bson.M{"room_code": roomCode})
	return err
}
