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

// User queries
func (db *Database) CountUsers(ctx context.Context) (int64, error) {
	defer db.observe(ctx, "users.count", time.Now())
	return db.col(colUsers).CountDocuments(ctx, bson.M{})
}

func (db *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer db.observe(ctx, "users.find_by_email", time.Now())
	var user models.User
	err := db.col(colUsers).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	defer db.observe(ctx, "users.find_by_id", time.Now())
	var user models.User
	err := db.col(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) FindUserBySetupToken(ctx context.Context, token string) (*models.User, error) {
	defer db.observe(ctx, "users.find_by_setup_token", time.Now())
	var user models.User
	err := db.col(colUsers).FindOne(ctx, bson.M{"setup_token": token}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) CreateUser(ctx context.Context, user *models.User) error {
	defer db.observe(ctx, "users.insert", time.Now())
	res, err := db.col(colUsers).InsertOne(ctx, user)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return nil
}

// UpdateUser replaces the stored user document; used by the setup-password flow.
func (db *Database) UpdateUser(ctx context.Context, user *models.User) error {
	defer db.observe(ctx, "users.replace", time.Now())
	update := bson.M{"$set": bson.M{
		"password_hash": user.PasswordHash,
		"is_active":     user.IsActive,
	}}
	if user.SetupToken == "" {
		update["$unset"] = bson.M{"setup_token": ""}
	}
	_, err := db.col(colUsers).UpdateByID(ctx, user.ID, update)
	return err
}

func (db *Database) UpdateUserRole(ctx context.Context, id primitive.ObjectID, role string) error {
	defer db.observe(ctx, "users.update_role", time.Now())
	_, err := db.col(colUsers).UpdateByID(ctx, id, bson.M{"$set": bson.M{"role": role}})
	return err
}

func (db *Database) DeleteUser(ctx context.Context, id primitive.ObjectID) (bool, error) {
	defer db.observe(ctx, "users.delete", time.Now())
	res, err := db.col(colUsers).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (db *Database) ListUsers(ctx context.Context) ([]models.User, error) {
	defer db.observe(ctx, "users.list", time.Now())
	cur, err := db.col(colUsers).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Profile queries
func (db *Database) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	defer db.observe(ctx, "profiles.insert", time.Now())
	_, err := db.col(colProfiles).InsertOne(ctx, profile)
	return err
}

func (db *Database) FindProfileByUserID(ctx context.Context, userID string) (*models.UserProfile, error) {
	defer db.observe(ctx, "profiles.find_by_user_id", time.Now())
	var profile models.UserProfile
	err := db.col(colProfiles).FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (db *Database) UpdateProfile(ctx context.Context, profile *models.UserProfile) error {
	defer db.observe(ctx, "profiles.update", time.Now())
	update := bson.M{"$set": bson.M{
		"first_name": profile.FirstName,
		"last_name":  profile.LastName,
		"nickname":   profile.Nickname,
		"position":   profile.Position,
	}}
	_, err := db.col(colProfiles).UpdateOne(ctx, bson.M{"user_id": profile.UserID}, update)
	return err
}

func (db *Database) DeleteProfileByUserID(ctx context.Context, userID string) error {
	defer db.observe(ctx, "profiles.delete", time.Now())
	_, err := db.col(colProfiles).DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}
