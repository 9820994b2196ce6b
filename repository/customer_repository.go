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

// MongoCustomerRepository implements CustomerRepository.
type MongoCustomerRepository struct {
	collection *mongo.Collection
}

func NewMongoCustomerRepository(db *mongo.Database) *MongoCustomerRepository {
	return &MongoCustomerRepository{collection: db.Collection(CollCustomers)}
}

// RecordOrder upserts the customer and counts one more order.
func (r *MongoCustomerRepository) RecordOrder(ctx context.Context, c CustomerOrder) error {
	now := time.Now().UTC()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": c.UserID},
		bson.M{
			"$set": bson.M{
				"email":      c.Email,
				"name":       c.Name,
				"phone":      c.Phone,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{"first_seen_at": c.OrderAt, "lifetime_value": int64(0)},
			"$max":         bson.M{"last_order_at": c.OrderAt},
			"$inc":         bson.M{"order_count": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func (r *MongoCustomerRepository) AddPayment(ctx context.Context, userID string, amount int64) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"lifetime_value": amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoCustomerRepository) FindByID(ctx context.Context, userID string) (*models.Customer, error) {
	var c models.Customer
	if err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&c); err != nil {
		return nil, wrapFind(err, "customer")
	}
	return &c, nil
}

func (r *MongoCustomerRepository) List(ctx context.Context, page, limit int) ([]models.Customer, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}
	skip, lim := skipLimit(page, limit)
	out, err := r.find(ctx, options.Find().
		SetSort(bson.D{{Key: "last_order_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(lim))
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *MongoCustomerRepository) All(ctx context.Context) ([]models.Customer, error) {
	return r.find(ctx, options.Find().SetSort(bson.D{{Key: "last_order_at", Value: -1}}))
}

func (r *MongoCustomerRepository) find(ctx context.Context, opts *options.FindOptions) ([]models.Customer, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Customer{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode customers: %w", err)
	}
	return out, nil
}

func (r *MongoCustomerRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "last_order_at", Value: -1}}},
	})
	return err
}
