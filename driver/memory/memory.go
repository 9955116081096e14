// Package memory keeps completion records in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
)

var ErrAlreadyRegistered = errors.New("migration is already registered")

type Driver[DB any] struct {
	mu      sync.Mutex
	records map[string]map[string]time.Time

	now func() time.Time
}

var _ driver.Driver[any] = (*Driver[any])(nil)

func NewDriver[DB any]() *Driver[DB] {
	return &Driver[DB]{
		records: make(map[string]map[string]time.Time),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock replaces the time source used for completion timestamps.
func (drv *Driver[DB]) WithClock(now func() time.Time) *Driver[DB] {
	drv.now = now
	return drv
}

func (drv *Driver[DB]) Init(_ context.Context, args driver.Args[DB]) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()

	if _, ok := drv.records[args.Metadata]; !ok {
		drv.records[args.Metadata] = make(map[string]time.Time)
	}

	return nil
}

func (drv *Driver[DB]) CompletedMigrationIDs(ctx context.Context, args driver.Args[DB]) ([]string, error) {
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

func (drv *Driver[DB]) CompletedMigrations(_ context.Context, args driver.Args[DB]) ([]migration.Record, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()

	table := drv.records[args.Metadata]
	result := make([]migration.Record, 0, len(table))
	for id, completedAt := range table {
		result = append(result, migration.Record{ID: id, CompletedAt: completedAt})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (drv *Driver[DB]) RegisterMigration(_ context.Context, args driver.RegistrationArgs[DB]) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()

	table, ok := drv.records[args.Metadata]
	if !ok {
		table = make(map[string]time.Time)
		drv.records[args.Metadata] = table
	}

	if _, ok := table[args.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, args.ID)
	}

	table[args.ID] = drv.now()

	return nil
}

func (drv *Driver[DB]) UnregisterMigration(_ context.Context, args driver.RegistrationArgs[DB]) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()

	delete(drv.records[args.Metadata], args.ID)

	return nil
}
