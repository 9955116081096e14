// Package redis records completed migrations in a Redis hash. The hash key
// is the metadata name, fields are migration ids and values are completion
// times.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
)

var ErrAlreadyRegistered = errors.New("migration is already registered")

type Driver struct {
	now func() time.Time
}

var (
	_ driver.Driver[redis.UniversalClient]       = (*Driver)(nil)
	_ driver.RecordLister[redis.UniversalClient] = (*Driver)(nil)
)

func NewDriver() *Driver {
	return &Driver{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Init only checks connectivity, hashes are created on first write.
func (drv *Driver) Init(ctx context.Context, args driver.Args[redis.UniversalClient]) error {
	if err := args.DB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	return nil
}

func (drv *Driver) CompletedMigrationIDs(ctx context.Context, args driver.Args[redis.UniversalClient]) ([]string, error) {
	ids, err := args.DB.HKeys(ctx, args.Metadata).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list completed migrations: %w", err)
	}

	sort.Strings(ids)

	return ids, nil
}

func (drv *Driver) CompletedMigrations(
	ctx context.Context,
	args driver.Args[redis.UniversalClient],
) ([]migration.Record, error) {
	values, err := args.DB.HGetAll(ctx, args.Metadata).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list completed migrations: %w", err)
	}

	result := make([]migration.Record, 0, len(values))
	for id, value := range values {
		// unparsable timestamps are reported as zero
		completedAt, _ := time.Parse(time.RFC3339Nano, value)
		result = append(result, migration.Record{ID: id, CompletedAt: completedAt})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (drv *Driver) RegisterMigration(ctx context.Context, args driver.RegistrationArgs[redis.UniversalClient]) error {
	created, err := args.DB.HSetNX(ctx, args.Metadata, args.ID, drv.now().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return fmt.Errorf("failed to register migration %s: %w", args.ID, err)
	}

	if !created {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, args.ID)
	}

	return nil
}

func (drv *Driver) UnregisterMigration(ctx context.Context, args driver.RegistrationArgs[redis.UniversalClient]) error {
	if err := args.DB.HDel(ctx, args.Metadata, args.ID).Err(); err != nil {
		return fmt.Errorf("failed to unregister migration %s: %w", args.ID, err)
	}

	return nil
}
