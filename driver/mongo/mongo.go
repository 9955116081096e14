// Package mongo records completed migrations in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
)

type record struct {
	ID        string    `bson:"id"`
	Completed time.Time `bson:"completed"`
}

type Driver struct {
	now func() time.Time
}

var (
	_ driver.Driver[*mongo.Database]       = (*Driver)(nil)
	_ driver.RecordLister[*mongo.Database] = (*Driver)(nil)
)

func NewDriver() *Driver {
	return &Driver{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Init creates a unique index on the id field, which also creates the
// collection when it does not exist yet.
func (drv *Driver) Init(ctx context.Context, args driver.Args[*mongo.Database]) error {
	args.Logger.Debugf("○ Ensuring migrations collection %s exists.", args.Metadata)

	_, err := args.DB.Collection(args.Metadata).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create migrations collection %s: %w", args.Metadata, err)
	}

	return nil
}

func (drv *Driver) CompletedMigrationIDs(ctx context.Context, args driver.Args[*mongo.Database]) ([]string, error) {
	records, err := drv.CompletedMigrations(ctx, args)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	return ids, nil
}

func (drv *Driver) CompletedMigrations(
	ctx context.Context,
	args driver.Args[*mongo.Database],
) ([]migration.Record, error) {
	cursor, err := args.DB.Collection(args.Metadata).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list completed migrations: %w", err)
	}

	var docs []record
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: %s", driver.ErrInvalidLogTable, err)
	}

	result := make([]migration.Record, len(docs))
	for i, doc := range docs {
		result[i] = migration.Record{ID: doc.ID, CompletedAt: doc.Completed}
	}

	return result, nil
}

func (drv *Driver) RegisterMigration(ctx context.Context, args driver.RegistrationArgs[*mongo.Database]) error {
	_, err := args.DB.Collection(args.Metadata).InsertOne(ctx, record{
		ID:        args.ID,
		Completed: drv.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to register migration %s: %w", args.ID, err)
	}

	return nil
}

func (drv *Driver) UnregisterMigration(ctx context.Context, args driver.RegistrationArgs[*mongo.Database]) error {
	_, err := args.DB.Collection(args.Metadata).DeleteOne(ctx, bson.D{{Key: "id", Value: args.ID}})
	if err != nil {
		return fmt.Errorf("failed to unregister migration %s: %w", args.ID, err)
	}

	return nil
}
