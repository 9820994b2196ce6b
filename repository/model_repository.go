package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoModelRepository implements ModelRepository on the Models collection.
type MongoModelRepository struct {
	collection *mongo.Collection
}

func NewMongoModelRepository(db *mongo.Database) *MongoModelRepository {
	return &MongoModelRepository{collection: db.Collection(CollModels)}
}

func (r *MongoModelRepository) List(ctx context.Context, activeOnly bool) ([]models.HomeModel, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "base_price", Value: 1}, {Key: "slug", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.HomeModel{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return out, nil
}

func (r *MongoModelRepository) FindByID(ctx context.Context, id string) (*models.HomeModel, error) {
	var m models.HomeModel
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, wrapFind(err, "model")
	}
	return &m, nil
}

func (r *MongoModelRepository) FindBySlug(ctx context.Context, slug string) (*models.HomeModel, error) {
	var m models.HomeModel
	if err := r.collection.FindOne(ctx, bson.M{"slug": slug}).Decode(&m); err != nil {
		return nil, wrapFind(err, "model")
	}
	return &m, nil
}

func (r *MongoModelRepository) Create(ctx context.Context, m *models.HomeModel) error {
	// $push needs an array, not null.
	if m.Images == nil {
		m.Images = []models.ModelImage{}
	}
	if _, err := r.collection.InsertOne(ctx, m); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

func (r *MongoModelRepository) Replace(ctx context.Context, m *models.HomeModel) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("replace model: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertBySlug inserts m or replaces the model with the same slug, keeping
// the stored id, images and creation time.
func (r *MongoModelRepository) UpsertBySlug(ctx context.Context, m *models.HomeModel) error {
	existing, err := r.FindBySlug(ctx, m.Slug)
	switch {
	case errors.Is(err, ErrNotFound):
		return r.Create(ctx, m)
	case err != nil:
		return err
	}
	m.ID = existing.ID
	m.CreatedAt = existing.CreatedAt
	if len(m.Images) == 0 {
		m.Images = existing.Images
	}
	return r.Replace(ctx, m)
}

func (r *MongoModelRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"active": active, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddImage appends img. A primary image demotes the others first.
func (r *MongoModelRepository) AddImage(ctx context.Context, id string, img models.ModelImage) (*models.HomeModel, error) {
	if img.Primary {
		if _, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": id, "images.0": bson.M{"$exists": true}},
			bson.M{"$set": bson.M{"images.$[].primary": false}},
		); err != nil {
			return nil, fmt.Errorf("demote images: %w", err)
		}
	}

	var m models.HomeModel
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"images": img},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, wrapFind(err, "model")
	}
	return &m, nil
}

func (r *MongoModelRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "base_price", Value: 1}}},
	})
	return err
}
