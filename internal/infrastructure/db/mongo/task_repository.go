package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/ports"
)

const collectionTasks = "tasks"

type TaskRepository struct {
	col *mongo.Collection
}

func NewTaskRepository(db *mongo.Database) *TaskRepository {
	return &TaskRepository{col: db.Collection(collectionTasks)}
}

var openStatuses = bson.A{string(domain.TaskNew), string(domain.TaskInProgress)}

// Create inserts a new task document.
func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var t domain.Task
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Replace swaps the document only if nobody wrote it since prevUpdatedAt.
func (r *TaskRepository) Replace(ctx context.Context, t *domain.Task, prevUpdatedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": t.ID, "updated_at": prevUpdatedAt}, t)
	if err != nil {
		return fmt.Errorf("replace task: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missOr(ctx, t.ID, domain.ErrTaskConflict)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// ListByAssignee returns the user's tasks, soonest due first.
func (r *TaskRepository) ListByAssignee(ctx context.Context, userID string) ([]*domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "due_at", Value: 1}, {Key: "created_at", Value: -1}})
	return r.find(ctx, bson.M{"assignees.user_id": userID}, opts)
}

func (r *TaskRepository) ListOpenGeofenced(ctx context.Context, userID string) ([]*domain.Task, error) {
	filter := bson.M{
		"status":   bson.M{"$in": openStatuses},
		"geofence": bson.M{"$ne": nil},
	}
	if userID != "" {
		filter["assignees.user_id"] = userID
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

// List applies the admin filters and returns one page plus the total count.
func (r *TaskRepository) List(ctx context.Context, f ports.ListTasksFilter) ([]*domain.Task, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.AssigneeID != "" {
		filter["assignees.user_id"] = f.AssigneeID
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"description": re}}
	}

	countCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	total, err := r.col.CountDocuments(countCtx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))
	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, from, to domain.TaskStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": string(from)}
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": at}}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missOr(ctx, id, domain.ErrInvalidTransition)
	}
	return nil
}

// Acknowledge stamps the assignment in place. The filter only matches an open
// task with an unstamped assignment, so concurrent acknowledgements cannot both
// win and a task closed in the meantime is left alone.
func (r *TaskRepository) Acknowledge(ctx context.Context, id, userID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"assignees.$.acknowledged_at": at,
		"updated_at":                  at,
	}}
	res, err := r.col.UpdateOne(ctx, acknowledgeFilter(id, userID), update)
	if err != nil {
		return fmt.Errorf("acknowledge task: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	task, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return acknowledgeMiss(task, userID)
}

func acknowledgeFilter(id, userID string) bson.M {
	return bson.M{
		"_id":    id,
		"status": bson.M{"$in": openStatuses},
		"assignees": bson.M{"$elemMatch": bson.M{
			"user_id":         userID,
			"acknowledged_at": nil,
		}},
	}
}

// acknowledgeMiss explains why the acknowledge filter matched nothing.
func acknowledgeMiss(task *domain.Task, userID string) error {
	a, ok := task.Assignment(userID)
	switch {
	case !ok:
		return domain.ErrNotAssigned
	case a.AcknowledgedAt != nil:
		return domain.ErrAlreadyAcknowledged
	case !task.Status.Open():
		return fmt.Errorf("acknowledge: %w (task is %s)", domain.ErrInvalidTransition, task.Status)
	}
	// Matched nothing yet looks acknowledgeable: another writer got there first.
	return domain.ErrTaskConflict
}

type statsDoc struct {
	New        int64 `bson:"new"`
	InProgress int64 `bson:"in_progress"`
	Completed  int64 `bson:"completed"`
	Cancelled  int64 `bson:"cancelled"`
	Overdue    int64 `bson:"overdue"`
	Geofenced  int64 `bson:"geofenced"`
}

// Stats counts tasks in a single aggregation pass.
func (r *TaskRepository) Stats(ctx context.Context, assigneeID string, now time.Time) (*ports.TaskStats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	match := bson.M{}
	if assigneeID != "" {
		match["assignees.user_id"] = assigneeID
	}
	countIf := func(cond interface{}) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{cond, 1, 0}}}
	}
	statusIs := func(s domain.TaskStatus) bson.M {
		return bson.M{"$eq": bson.A{"$status", string(s)}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"new":         countIf(statusIs(domain.TaskNew)),
			"in_progress": countIf(statusIs(domain.TaskInProgress)),
			"completed":   countIf(statusIs(domain.TaskCompleted)),
			"cancelled":   countIf(statusIs(domain.TaskCancelled)),
			"overdue": countIf(bson.M{"$and": bson.A{
				bson.M{"$in": bson.A{"$status", openStatuses}},
				bson.M{"$eq": bson.A{bson.M{"$type": "$due_at"}, "date"}},
				bson.M{"$lt": bson.A{"$due_at", now}},
			}}),
			"geofenced": countIf(bson.M{"$eq": bson.A{bson.M{"$type": "$geofence"}, "object"}}),
		}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	var docs []statsDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode task stats: %w", err)
	}
	stats := &ports.TaskStats{}
	if len(docs) > 0 {
		d := docs[0]
		*stats = ports.TaskStats{
			New:        d.New,
			InProgress: d.InProgress,
			Completed:  d.Completed,
			Cancelled:  d.Cancelled,
			Overdue:    d.Overdue,
			Geofenced:  d.Geofenced,
		}
	}
	return stats, nil
}

// EnsureIndexes creates necessary indexes on the tasks collection.
func (r *TaskRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "assignees.user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "due_at", Value: 1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *TaskRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	tasks := make([]*domain.Task, 0)
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

// missOr tells a missing task apart from a failed precondition.
func (r *TaskRepository) missOr(ctx context.Context, id string, precondition error) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count task: %w", err)
	}
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return precondition
}
