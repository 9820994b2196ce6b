package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBuildRepository implements BuildRepository on the Builds collection.
type MongoBuildRepository struct {
	collection *mongo.Collection
}

func NewMongoBuildRepository(db *mongo.Database) *MongoBuildRepository {
	return &MongoBuildRepository{collection: db.Collection(CollBuilds)}
}

func (r *MongoBuildRepository) Create(ctx context.Context, b *models.Build) error {
	if _, err := r.collection.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

func (r *MongoBuildRepository) FindByID(ctx context.Context, id string) (*models.Build, error) {
	var b models.Build
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, wrapFind(err, "build")
	}
	return &b, nil
}

func (r *MongoBuildRepository) ListByUser(ctx context.Context, userID string) ([]models.Build, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID, "status": bson.M{"$ne": models.BuildStatusCancelled}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Build{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode builds: %w", err)
	}
	return out, nil
}

func (r *MongoBuildRepository) List(ctx context.Context, filter BuildFilter, page, limit int) ([]models.Build, int64, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Step > 0 {
		q["step"] = filter.Step
	}
	if filter.UserID != "" {
		q["user_id"] = filter.UserID
	}

	total, err := r.collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count builds: %w", err)
	}

	skip, lim := skipLimit(page, limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(lim)
	cursor, err := r.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list builds: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Build{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode builds: %w", err)
	}
	return out, total, nil
}

func (r *MongoBuildRepository) SaveDraft(ctx context.Context, b *models.Build) error {
	b.UpdatedAt = time.Now().UTC()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": b.ID, "status": models.BuildStatusDraft}, b)
	if err != nil {
		return fmt.Errorf("save build: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missingOrConflict(ctx, b.ID)
	}
	return nil
}

func (r *MongoBuildRepository) MarkSubmitted(ctx context.Context, id, orderID string) error {
	return r.transition(ctx, id, bson.M{
		"status":     models.BuildStatusSubmitted,
		"order_id":   orderID,
		"updated_at": time.Now().UTC(),
	})
}

func (r *MongoBuildRepository) Cancel(ctx context.Context, id string) error {
	return r.transition(ctx, id, bson.M{
		"status":     models.BuildStatusCancelled,
		"updated_at": time.Now().UTC(),
	})
}

func (r *MongoBuildRepository) transition(ctx context.Context, id string, set bson.M) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.BuildStatusDraft},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *MongoBuildRepository) missingOrConflict(ctx context.Context, id string) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count build: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *MongoBuildRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "step", Value: 1}}},
	})
	return err
}
