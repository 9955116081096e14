package henka

import (
	"context"
	"fmt"
	"sort"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/source"
)

type StatusResult struct {
	Migrations   []migration.State
	AppliedCount uint
	PendingCount uint
	MissingCount uint
}

// Status compares discovered migrations with the completion records.
// Migrations recorded as applied but no longer discoverable are Missing.
func (m *henkaImpl[DB]) Status(ctx context.Context) (*StatusResult, error) {
	args := m.args()

	if err := m.driver.Init(ctx, args); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations metadata: %w", err)
	}

	records, err := m.completedRecords(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	units, err := m.retrieve(ctx, source.Options[DB]{
		Exclude: migration.IDSet{},
		Verify:  m.verify,
		Logger:  m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	result := StatusResult{
		Migrations: make([]migration.State, 0, len(units)),
	}

	available := make(migration.IDSet, len(units))
	for _, unit := range units {
		available.Add(unit.ID)

		state := migration.State{ID: unit.ID, Status: migration.Pending}
		if record, ok := records[unit.ID]; ok {
			state.Status = migration.Applied
			state.CompletedAt = record.CompletedAt
			result.AppliedCount++
		} else {
			result.PendingCount++
		}

		result.Migrations = append(result.Migrations, state)
	}

	for id, record := range records {
		if available.Has(id) {
			continue
		}

		result.Migrations = append(result.Migrations, migration.State{
			ID:          id,
			Status:      migration.Missing,
			CompletedAt: record.CompletedAt,
		})
		result.MissingCount++
	}

	sort.Slice(result.Migrations, func(i, j int) bool {
		return result.Migrations[i].ID < result.Migrations[j].ID
	})

	return &result, nil
}

func (m *henkaImpl[DB]) completedRecords(ctx context.Context, args driver.Args[DB]) (map[string]migration.Record, error) {
	var records []migration.Record

	if lister, ok := m.driver.(driver.RecordLister[DB]); ok {
		var err error
		if records, err = lister.CompletedMigrations(ctx, args); err != nil {
			return nil, err
		}
	} else {
		ids, err := m.driver.CompletedMigrationIDs(ctx, args)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			records = append(records, migration.Record{ID: id})
		}
	}

	result := make(map[string]migration.Record, len(records))
	for _, record := range records {
		result[record.ID] = record
	}

	return result, nil
}
