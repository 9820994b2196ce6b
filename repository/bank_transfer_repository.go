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

// MongoBankTransferRepository implements BankTransferRepository.
type MongoBankTransferRepository struct {
	collection *mongo.Collection
}

func NewMongoBankTransferRepository(db *mongo.Database) *MongoBankTransferRepository {
	return &MongoBankTransferRepository{collection: db.Collection(CollBankTransfers)}
}

func (r *MongoBankTransferRepository) Create(ctx context.Context, bt *models.BankTransferIntent) error {
	if _, err := r.collection.InsertOne(ctx, bt); err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert bank transfer: %w", err)
	}
	return nil
}

func (r *MongoBankTransferRepository) FindByID(ctx context.Context, id string) (*models.BankTransferIntent, error) {
	var bt models.BankTransferIntent
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&bt); err != nil {
		return nil, wrapFind(err, "bank transfer")
	}
	return &bt, nil
}

func (r *MongoBankTransferRepository) FindPending(ctx context.Context, orderID string, milestone models.MilestoneName) (*models.BankTransferIntent, error) {
	var bt models.BankTransferIntent
	err := r.collection.FindOne(ctx, bson.M{
		"order_id":  orderID,
		"milestone": milestone,
		"status":    models.BankTransferPending,
	}).Decode(&bt)
	if err != nil {
		return nil, wrapFind(err, "bank transfer")
	}
	return &bt, nil
}

func (r *MongoBankTransferRepository) List(ctx context.Context, status models.BankTransferStatus, page, limit int) ([]models.BankTransferIntent, int64, error) {
	q := bson.M{}
	if status != "" {
		q["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count bank transfers: %w", err)
	}

	skip, lim := skipLimit(page, limit)
	cursor, err := r.collection.Find(ctx, q, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(lim))
	if err != nil {
		return nil, 0, fmt.Errorf("list bank transfers: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.BankTransferIntent{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode bank transfers: %w", err)
	}
	return out, total, nil
}

func (r *MongoBankTransferRepository) Resolve(ctx context.Context, id string, status models.BankTransferStatus, fields map[string]interface{}) (*models.BankTransferIntent, error) {
	set := bson.M{"status": status, "updated_at": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}

	var bt models.BankTransferIntent
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.BankTransferPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&bt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("resolve bank transfer: %w", err)
	}
	return &bt, nil
}

func (r *MongoBankTransferRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reference_code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "milestone", Value: 1}}},
	})
	return err
}
