package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOrderRepository implements OrderRepository on the Orders collection.
type MongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{collection: db.Collection(CollOrders)}
}

func (r *MongoOrderRepository) Create(ctx context.Context, o *models.Order) error {
	if o.Timeline == nil {
		o.Timeline = []models.TimelineEntry{}
	}
	if o.Notes == nil {
		o.Notes = []models.OrderNote{}
	}
	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *MongoOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoOrderRepository) FindByBuildID(ctx context.Context, buildID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"build_id": buildID})
}

func (r *MongoOrderRepository) FindByIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	return r.findOne(ctx, bson.M{"milestones.intent_id": intentID})
}

func (r *MongoOrderRepository) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var o models.Order
	if err := r.collection.FindOne(ctx, filter).Decode(&o); err != nil {
		return nil, wrapFind(err, "order")
	}
	return &o, nil
}

func (r *MongoOrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, bson.M{"user_id": userID}, opts)
}

func (r *MongoOrderRepository) List(ctx context.Context, filter models.OrderFilter, page, limit int) ([]models.Order, int64, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.ProductionStatus != "" {
		q["production_status"] = filter.ProductionStatus
	}
	if filter.Search != "" {
		pattern := ciRegex(filter.Search)
		q["$or"] = bson.A{
			bson.M{"order_number": pattern},
			bson.M{"customer.name": pattern},
			bson.M{"customer.email": pattern},
			bson.M{"model_name": pattern},
		}
	}
	if created := rangeFilter(filter.From, filter.To); created != nil {
		q["created_at"] = created
	}

	total, err := r.collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	skip, lim := skipLimit(page, limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(lim)
	out, err := r.find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *MongoOrderRepository) FindCreatedBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	q := bson.M{"status": bson.M{"$ne": models.OrderStatusCancelled}}
	if created := rangeFilter(from, to); created != nil {
		q["created_at"] = created
	}
	return r.find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *MongoOrderRepository) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cursor, err := r.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Order{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return out, nil
}

func (r *MongoOrderRepository) Update(ctx context.Context, id string, updates map[string]interface{}, entry *models.TimelineEntry) (*models.Order, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range updates {
		set[k] = v
	}
	update := bson.M{"$set": set}
	if entry != nil {
		update["$push"] = bson.M{"timeline": entry}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
}

func (r *MongoOrderRepository) AddNote(ctx context.Context, id string, note models.OrderNote, entry *models.TimelineEntry) (*models.Order, error) {
	push := bson.M{"notes": note}
	if entry != nil {
		push["timeline"] = entry
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$push": push,
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *MongoOrderRepository) UpdateMilestone(ctx context.Context, id string, name models.MilestoneName, from []models.MilestoneStatus, fields map[string]interface{}, entry *models.TimelineEntry) (*models.Order, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		set["milestones.$."+k] = v
	}
	update := bson.M{"$set": set}
	if entry != nil {
		update["$push"] = bson.M{"timeline": entry}
	}

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$ne": models.OrderStatusCancelled},
		"milestones": bson.M{"$elemMatch": bson.M{
			"name":   name,
			"status": bson.M{"$in": from},
		}},
	}
	o, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, ErrNotFound) {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	// The order status is derived from milestones; persist it alongside.
	if status := o.DeriveStatus(); status != o.Status {
		return r.Update(ctx, id, map[string]interface{}{"status": status}, nil)
	}
	return o, nil
}

func (r *MongoOrderRepository) Cancel(ctx context.Context, id string, entry *models.TimelineEntry) (*models.Order, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$ne": models.OrderStatusCancelled},
		"milestones": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"status": bson.M{"$in": bson.A{models.MilestonePaid, models.MilestoneProcessing}},
		}}},
	}
	update := bson.M{"$set": bson.M{
		"status":     models.OrderStatusCancelled,
		"updated_at": time.Now().UTC(),
	}}
	if entry != nil {
		update["$push"] = bson.M{"timeline": entry}
	}
	o, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, ErrNotFound) {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrConflict
	}
	return o, err
}

func (r *MongoOrderRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Order, error) {
	var o models.Order
	err := r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&o)
	if err != nil {
		return nil, wrapFind(err, "order")
	}
	return &o, nil
}

func (r *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "build_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "production_status", Value: 1}}},
		{Keys: bson.D{{Key: "milestones.intent_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

func rangeFilter(from, to time.Time) bson.M {
	if from.IsZero() && to.IsZero() {
		return nil
	}
	m := bson.M{}
	if !from.IsZero() {
		m["$gte"] = from
	}
	if !to.IsZero() {
		m["$lt"] = to
	}
	return m
}

func ciRegex(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}
