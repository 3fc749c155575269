package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Collection names
const (
	colUsers      = "users"
	colProfiles   = "user_profiles"
	colWorkspaces = "workspaces"
	colRooms      = "rooms"
	colTasks      = "tasks"
	colProjects   = "projects"
	colAssignees  = "assignees"
	colSprints    = "sprints"
)

var dbLatency metric.Float64Histogram

type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection
func New(uri, name string) (*Database, error) {
	var err error

	// Initialize metrics
	meter := otel.Meter("mongo-client")
	dbLatency, err = meter.Float64Histogram("db.operation.latency", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create db.operation.latency instrument: %w", err)
	}

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Test connection with tracing
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx, span := otel.Tracer("mongo-client").Start(ctx, "db.ping")
	defer span.End()
	if err := client.Ping(ctx, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ping MongoDB")
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	span.SetStatus(codes.Ok, "MongoDB connected successfully")
	return &Database{client: client, db: client.Database(name)}, nil
}

func (db *Database) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *Database) Health(ctx context.Context) error {
	return db.client.Ping(ctx, nil)
}

func (db *Database) col(name string) *mongo.Collection {
	return db.db.Collection(name)
}

// observe records operation latency; used as `defer db.observe(ctx, op, time.Now())`
func (db *Database) observe(ctx context.Context, op string, start time.Time) {
	if dbLatency == nil {
		return
	}
	dbLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("db.operation", op)))
}
