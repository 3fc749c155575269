package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/khunphaen/sync-server/internal/models"
)

// TaskFilter narrows ListTasks. Zero values mean "no constraint".
type TaskFilter struct {
	Status          string
	Project         string
	AssigneeID      string
	SprintID        string
	Search          string
	IncludeArchived bool
}

// Task queries
func (db *Database) ListTasks(ctx context.Context, workspaceID primitive.ObjectID, filter TaskFilter) ([]models.Task, error) {
	defer db.observe(ctx, "tasks.list", time.Now())
	query := bson.M{"workspace_id": workspaceID}
	if !filter.IncludeArchived {
		query["is_archived"] = bson.M{"$ne": true}
	}
	if filter.Status != "" && filter.Status != "all" {
		query["status"] = filter.Status
	}
	if filter.Project != "" && filter.Project != "all" {
		query["project"] = filter.Project
	}
	if filter.AssigneeID != "" && filter.AssigneeID != "all" {
		query["assignee_ids"] = filter.AssigneeID
	}
	if filter.SprintID != "" && filter.SprintID != "all" {
		query["sprint_id"] = filter.SprintID
	}
	if filter.Search != "" {
		query["title"] = bson.M{"$regex": filter.Search, "$options": "i"}
	}

	cur, err := db.col(colTasks).Find(ctx, query)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tasks []models.Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// TasksForDigest returns the workspace's non-archived tasks for the digest scheduler.
func (db *Database) TasksForDigest(ctx context.Context, workspaceID primitive.ObjectID) ([]models.Task, error) {
	return db.ListTasks(ctx, workspaceID, TaskFilter{})
}

func (db *Database) CreateTask(ctx context.Context, task *models.Task) error {
	defer db.observe(ctx, "tasks.insert", time.Now())
	res, err := db.col(colTasks).InsertOne(ctx, task)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		task.ID = oid
	}
	return nil
}

func (db *Database) UpdateTask(ctx context.Context, id, workspaceID primitive.ObjectID, updates bson.M) (bool, error) {
	defer db.observe(ctx, "tasks.update", time.Now())
	res, err := db.col(colTasks).UpdateOne(ctx,
		bson.M{"_id": id, "workspace_id": workspaceID},
		bson.M{"$set": updates},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (db *Database) DeleteTask(ctx context.Context, id, workspaceID primitive.ObjectID) (bool, error) {
	defer db.observe(ctx, "tasks.delete", time.Now())
	res, err := db.col(colTasks).DeleteOne(ctx, bson.M{"_id": id, "workspace_id": workspaceID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Project queries
func (db *Database) ListProjects(ctx context.Context, workspaceID primitive.ObjectID) ([]models.Project, error) {
	defer db.observe(ctx, "projects.list", time.Now())
	cur, err := db.col(colProjects).Find(ctx, bson.M{"workspace_id": workspaceID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var projects []models.Project
	if err := cur.All(ctx, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (db *Database) CreateProject(ctx context.Context, project *models.Project) error {
	defer db.observe(ctx, "projects.insert", time.Now())
	res, err := db.col(colProjects).InsertOne(ctx, project)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		project.ID = oid
	}
	return nil
}

func (db *Database) UpdateProject(ctx context.Context, id, workspaceID primitive.ObjectID, updates bson.M) (bool, error) {
	defer db.observe(ctx, "projects.update", time.Now())
	res, err := db.col(colProjects).UpdateOne(ctx,
		bson.M{"_id": id, "workspace_id": workspaceID},
		bson.M{"$set": updates},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (db *Database) DeleteProject(ctx context.Context, id, workspaceID primitive.ObjectID) (bool, error) {
	defer db.observe(ctx, "projects.delete", time.Now())
	res, err := db.col(colProjects).DeleteOne(ctx, bson.M{"_id": id, "workspace_id": workspaceID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Assignee queries
func (db *Database) ListAssignees(ctx context.Context, workspaceID primitive.ObjectID) ([]models.Assignee, error) {
	defer db.observe(ctx, "assignees.list", time.Now())
	cur, err := db.col(colAssignees).Find(ctx, bson.M{"workspace_id": workspaceID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var assignees []models.Assignee
	if err := cur.All(ctx, &assignees); err != nil {
		return nil, err
	}
	return assignees, nil
}

func (db *Database) CreateAssignee(ctx context.Context, assignee *models.Assignee) error {
	defer db.observe(ctx, "assignees.insert", time.Now())
	res, err := db.col(colAssignees).InsertOne(ctx, assignee)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		assignee.ID = oid
	}
	return nil
}

func (db *Database) UpdateAssignee(ctx context.Context, id, workspaceID primitive.ObjectID, updates bson.M) (bool, error) {
	defer db.observe(ctx, "assignees.update", time.Now())
	res, err := db.col(colAssignees).UpdateOne(ctx,
		bson.M{"_id": id, "workspace_id": workspaceID},
		bson.M{"$set": updates},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (db *Database) DeleteAssignee(ctx context.Context, id, workspaceID primitive.ObjectID) (bool, error) {
	defer db.observe(ctx, "assignees.delete", time.Now())
	res, err := db.col(colAssignees).DeleteOne(ctx, bson.M{"_id": id, "workspace_id": workspaceID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// AssignedWorkspaceIDs returns the workspaces where an assignee document is
// linked to the given user account.
func (db *Database) AssignedWorkspaceIDs(ctx context.Context, userIDHex string) ([]primitive.ObjectID, error) {
	defer db.observe(ctx, "assignees.assigned_workspaces", time.Now())
	raw, err := db.col(colAssignees).Distinct(ctx, "workspace_id", bson.M{"user_id": userIDHex})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if oid, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, oid)
		}
	}
	return ids, nil
}

// Sprint queries
func (db *Database) ListSprints(ctx context.Context, workspaceID primitive.ObjectID) ([]models.Sprint, error) {
	defer db.observe(ctx, "sprints.list", time.Now())
	cur, err := db.col(colSprints).Find(ctx, bson.M{"workspace_id": workspaceID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var sprints []models.Sprint
	if err := cur.All(ctx, &sprints); err != nil {
		return nil, err
	}
	return sprints, nil
}

func (db *Database) CreateSprint(ctx context.Context, sprint *models.Sprint) error {
	defer db.observe(ctx, "sprints.insert", time.Now())
	res, err := db.col(colSprints).InsertOne(ctx, sprint)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		sprint.ID = oid
	}
	return nil
}

func (db *Database) UpdateSprint(ctx context.Context, id, workspaceID primitive.ObjectID, updates bson.M) (bool, error) {
	defer db.observe(ctx, "sprints.update", time.Now())
	res, err := db.col(colSprints).UpdateOne(ctx,
		bson.M{"_id": id, "workspace_id": workspaceID},
		bson.M{"$set": updates},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (db *Database) DeleteSprint(ctx context.Context, id, workspaceID primitive.ObjectID) (bool, error) {
	defer db.observe(ctx, "sprints.delete", time.Now())
	res, err := db.col(colSprints).DeleteOne(ctx, bson.M{"_id": id, "workspace_id": workspaceID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// DeleteWorkspaceData removes all task/project/assignee/sprint documents for
// a workspace; used by the workspace deletion cascade.
func (db *Database) DeleteWorkspaceData(ctx context.Context, workspaceID primitive.ObjectID) error {
	defer db.observe(ctx, "data.delete_workspace", time.Now())
	filter := bson.M{"workspace_id": workspaceID}
	for _, name := range []string{colTasks, colProjects, colAssignees, colSprints} {
		if _, err := db.col(name).DeleteMany(ctx, filter); err != nil {
			return err
		}
	}
	return nil
}
