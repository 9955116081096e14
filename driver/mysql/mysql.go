// Package mysql records completed migrations in a MySQL or MariaDB table.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/migration"
)

const dateTimeLayout = "2006-01-02 15:04:05"

type DriverConfig struct {
	// DatabaseName qualifies the metadata table. Leave empty to use the
	// connection's current database.
	DatabaseName string
}

type Driver struct {
	config DriverConfig
	now    func() time.Time
}

var (
	_ driver.Driver[*sql.DB]       = (*Driver)(nil)
	_ driver.RecordLister[*sql.DB] = (*Driver)(nil)
)

func NewDriver(config DriverConfig) *Driver {
	return &Driver{
		config: config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (drv *Driver) Init(ctx context.Context, args driver.Args[*sql.DB]) error {
	tableName := drv.makeEscapedTableName(args.Metadata)

	args.Logger.Debugf("○ Ensuring migrations table %s exists.", tableName)

	_, err := args.DB.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"id           varchar(255) not null, "+
			"completed_at datetime not null, "+
			"primary key (id)"+
			") default charset utf8",
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
	tableName := drv.makeEscapedTableName(args.Metadata)

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

		record.CompletedAt = parseCompletedAt(completedAt)
		result = append(result, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations table %s: %w", tableName, err)
	}

	return result, nil
}

func (drv *Driver) RegisterMigration(ctx context.Context, args driver.RegistrationArgs[*sql.DB]) error {
	tableName := drv.makeEscapedTableName(args.Metadata)

	_, err := args.DB.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, completed_at) VALUES (?, ?)", tableName),
		args.ID, drv.now().Format(dateTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to register migration %s: %w", args.ID, err)
	}

	return nil
}

func (drv *Driver) UnregisterMigration(ctx context.Context, args driver.RegistrationArgs[*sql.DB]) error {
	tableName := drv.makeEscapedTableName(args.Metadata)

	_, err := args.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", tableName), args.ID)
	if err != nil {
		return fmt.Errorf("failed to unregister migration %s: %w", args.ID, err)
	}

	return nil
}

func (drv *Driver) makeEscapedTableName(metadata string) string {
	if drv.config.DatabaseName == "" {
		return fmt.Sprintf("`%s`", escapeMysqlString(metadata))
	}

	return fmt.Sprintf(
		"`%s`.`%s`",
		escapeMysqlString(drv.config.DatabaseName),
		escapeMysqlString(metadata),
	)
}

// parseCompletedAt accepts both raw DATETIME text and the RFC 3339 form
// database/sql produces when the DSN sets parseTime=true.
func parseCompletedAt(value string) time.Time {
	for _, layout := range []string{dateTimeLayout, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}

	return time.Time{}
}

// originally from https://gist.github.com/siddontang/8875771
func escapeMysqlString(sql string) string { //nolint:cyclop
	const prealloc = 2
	dest := make([]rune, 0, prealloc*len(sql))

	for _, character := range sql {
		var escape rune

		switch character {
		case 0:
			escape = '0'
		case '\n':
			escape = 'n'
		case '\r':
			escape = 'r'
		case '\\':
			escape = '\\'
		case '\'':
			escape = '\''
		case '"':
			escape = '"'
		case '`':
			escape = '`'
		case '\032':
			escape = 'Z'
		}

		if escape != 0 {
			dest = append(dest, '\\', escape)
		} else {
			dest = append(dest, character)
		}
	}

	return string(dest)
}
