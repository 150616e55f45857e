package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/geotask/task-service/internal/core/domain"
)

const collectionGeofences = "geofences"

type GeofenceRepository struct {
	col *mongo.Collection
}

func NewGeofenceRepository(db *mongo.Database) *GeofenceRepository {
	return &GeofenceRepository{col: db.Collection(collectionGeofences)}
}

func (r *GeofenceRepository) Create(ctx context.Context, g *domain.Geofence) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, g); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrGeofenceExists
		}
		return fmt.Errorf("insert geofence: %w", err)
	}
	return nil
}

func (r *GeofenceRepository) FindByID(ctx context.Context, id, ownerID string) (*domain.Geofence, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var g domain.Geofence
	if err := r.col.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrGeofenceNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *GeofenceRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Geofence, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "identifier", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find geofences: %w", err)
	}
	out := make([]*domain.Geofence, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode geofences: %w", err)
	}
	return out, nil
}

func (r *GeofenceRepository) Replace(ctx context.Context, g *domain.Geofence) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": g.ID, "owner_id": g.OwnerID}, g)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrGeofenceExists
		}
		return fmt.Errorf("replace geofence: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrGeofenceNotFound
	}
	return nil
}

func (r *GeofenceRepository) Delete(ctx context.Context, id, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("delete geofence: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrGeofenceNotFound
	}
	return nil
}

// EnsureIndexes makes identifiers unique per owner.
func (r *GeofenceRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "identifier", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
