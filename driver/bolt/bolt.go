// Package bolt records completed migrations in a bbolt bucket named after
// the metadata. Keys are migration ids, values are JSON records.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
)

var (
	ErrAlreadyRegistered = errors.New("migration is already registered")
	ErrBucketNotFound    = errors.New("migrations bucket does not exist")
)

type record struct {
	CompletedAt time.Time `json:"completed_at"`
}

type Driver struct {
	now func() time.Time
}

var (
	_ driver.Driver[*bbolt.DB]       = (*Driver)(nil)
	_ driver.RecordLister[*bbolt.DB] = (*Driver)(nil)
)

func NewDriver() *Driver {
	return &Driver{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (drv *Driver) Init(_ context.Context, args driver.Args[*bbolt.DB]) error {
	err := args.DB.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(args.Metadata))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create migrations bucket %s: %w", args.Metadata, err)
	}

	return nil
}

func (drv *Driver) CompletedMigrationIDs(ctx context.Context, args driver.Args[*bbolt.DB]) ([]string, error) {
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

func (drv *Driver) CompletedMigrations(_ context.Context, args driver.Args[*bbolt.DB]) ([]migration.Record, error) {
	result := make([]migration.Record, 0)

	err := args.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(args.Metadata))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, args.Metadata)
		}

		// keys are iterated in byte order
		return bucket.ForEach(func(key, value []byte) error {
			var rec record
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("%w: record %s: %s", driver.ErrInvalidLogTable, key, err)
			}

			result = append(result, migration.Record{ID: string(key), CompletedAt: rec.CompletedAt})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed migrations: %w", err)
	}

	return result, nil
}

func (drv *Driver) RegisterMigration(_ context.Context, args driver.RegistrationArgs[*bbolt.DB]) error {
	value, err := json.Marshal(record{CompletedAt: drv.now()})
	if err != nil {
		return fmt.Errorf("failed to register migration %s: %w", args.ID, err)
	}

	err = args.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(args.Metadata))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, args.Metadata)
		}

		if bucket.Get([]byte(args.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, args.ID)
		}

		return bucket.Put([]byte(args.ID), value)
	})
	if err != nil {
		return fmt.Errorf("failed to register migration %s: %w", args.ID, err)
	}

	return nil
}

func (drv *Driver) UnregisterMigration(_ context.Context, args driver.RegistrationArgs[*bbolt.DB]) error {
	err := args.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(args.Metadata))
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(args.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to unregister migration %s: %w", args.ID, err)
	}

	return nil
}
