// Package sqlite records completed migrations in an SQLite table.
//
// Any database/sql connection to SQLite works; the tests and the henka
// command use the pure Go modernc.org/sqlite driver registered as "sqlite".
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
)

type Driver struct {
	now func() time.Time
}

var (
	_ driver.Driver[*sql.DB]       = (*Driver)(nil)
	_ driver.RecordLister[*sql.DB] = (*Driver)(nil)
)

func NewDriver() *Driver {
	return &Driver{
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (drv *Driver) Init(ctx context.Context, args driver.Args[*sql.DB]) error {
	tableName := quoteIdentifier(args.Metadata)

	args.Logger.Debugf("○ Ensuring migrations table %s exists.", tableName)

	_, err := args.DB.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id TEXT NOT NULL PRIMARY KEY, completed_at TEXT NOT NULL)",
		tableName,
	))
	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", tableName, err)
	}

	return nil
}

func (drv *Driver) CompletedMigrationIDs(ctx context.Context, args driver.Args[*sql.DB]) ([]string, error) {
	records, err := drv.CompletedMigrations(ctx, args)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}

	return ids, nil
}

func (drv *Driver) CompletedMigrations(ctx context.Context, args driver.Args[*sql.DB]) ([]migration.Record, error) {
	tableName := quoteIdentifier(args.Metadata)

	rows, err := args.DB.QueryContext(ctx, fmt.Sprintf("SELECT id, completed_at FROM %s ORDER BY id", tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to list completed migrations: %w", err)
	}
	defer rows.Close()

	result := make([]migration.Record, 0)
	for rows.Next() {
		var record migration.Record
		var completedAt string

		if err := rows.Scan(&record.ID, &completedAt); err != nil {
			return nil, fmt.Errorf("%w: %s", driver.ErrInvalidLogTable, err)
		}

		// unparsable timestamps are reported as zero
		record.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		result = append(result, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations table %s: %w", tableName, err)
	}

	return result, nil
}

func (drv *Driver) RegisterMigration(ctx context.Context, args driver.RegistrationArgs[*sql.DB]) error {
	_, err := args.DB.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, completed_at) VALUES (?, ?)", quoteIdentifier(args.Metadata)),
		args.ID, drv.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to register migration %s: %w", args.ID, err)
	}

	return nil
}

func (drv *Driver) UnregisterMigration(ctx context.Context, args driver.RegistrationArgs[*sql.DB]) error {
	_, err := args.DB.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdentifier(args.Metadata)),
		args.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to unregister migration %s: %w", args.ID, err)
	}

	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
