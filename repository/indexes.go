package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// EnsureIndexes creates the indexes of every collection. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, ix := range map[string]indexer{
		CollModels:        NewMongoModelRepository(db),
		CollBuilds:        NewMongoBuildRepository(db),
		CollOrders:        NewMongoOrderRepository(db),
		CollBankTransfers: NewMongoBankTransferRepository(db),
		CollCustomers:     NewMongoCustomerRepository(db),
		"tracking":        NewMongoTrackingRepository(db),
	} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", name, err)
		}
	}
	return nil
}
