//nolint:gochecknoglobals
package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/mysql"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
)

var errConnection = errors.New("connection refused")

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, mock
}

func args(conn *sql.DB, metadata string) driver.Args[*sql.DB] {
	return driver.Args[*sql.DB]{DB: conn, Metadata: metadata, Logger: logger.Nop()}
}

const createTable = "CREATE TABLE IF NOT EXISTS %s (" +
	"id           varchar(255) not null, " +
	"completed_at datetime not null, " +
	"primary key (id)" +
	") default charset utf8"

// Test table for TestInit
var initTests = []struct {
	name          string
	config        mysql.DriverConfig
	metadata      string
	expectedTable string
}{
	/* s0 */ {
		name:          "test s0 - should use unqualified table name without a database",
		metadata:      driver.DefaultMetadata,
		expectedTable: "`_migrations`",
	},
	/* s1 */ {
		name:          "test s1 - should qualify table name with the database",
		config:        mysql.DriverConfig{DatabaseName: "testDatabase"},
		metadata:      "migrations_log",
		expectedTable: "`testDatabase`.`migrations_log`",
	},
	/* s2 */ {
		name:          "test s2 - should escape names",
		config:        mysql.DriverConfig{DatabaseName: "test`Database"},
		metadata:      "migrations'log",
		expectedTable: "`test\\`Database`.`migrations\\'log`",
	},
}

func TestInit(t *testing.T) {
	t.Parallel()

	for _, test := range initTests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			conn, mock := newMock(t)
			mock.ExpectExec(fmt.Sprintf(createTable, test.expectedTable)).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := mysql.NewDriver(test.config).Init(context.Background(), args(conn, test.metadata))

			assert.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInitError(t *testing.T) {
	t.Parallel()

	conn, mock := newMock(t)
	mock.ExpectExec(fmt.Sprintf(createTable, "`_migrations`")).WillReturnError(errConnection)

	err := mysql.NewDriver(mysql.DriverConfig{}).Init(context.Background(), args(conn, driver.DefaultMetadata))

	assert.ErrorIs(t, err, errConnection)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletedMigrations(t *testing.T) {
	t.Parallel()

	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT id, completed_at FROM `testDatabase`.`_migrations` ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "completed_at"}).
			AddRow("20220118115519-createUsersTable", "2022-01-19 10:00:00").
			AddRow("20220118120101-createPermissionsTable", "2022-01-19T10:04:00Z").
			AddRow("20220118120202-broken", "yesterday"))

	drv := mysql.NewDriver(mysql.DriverConfig{DatabaseName: "testDatabase"})
	records, err := drv.CompletedMigrations(context.Background(), args(conn, driver.DefaultMetadata))

	require.NoError(t, err)
	assert.Equal(t, []migration.Record{
		{ID: "20220118115519-createUsersTable", CompletedAt: time.Date(2022, 1, 19, 10, 0, 0, 0, time.UTC)},
		{ID: "20220118120101-createPermissionsTable", CompletedAt: time.Date(2022, 1, 19, 10, 4, 0, 0, time.UTC)},
		{ID: "20220118120202-broken"},
	}, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletedMigrationIDs(t *testing.T) {
	t.Parallel()

	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT id, completed_at FROM `_migrations` ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "completed_at"}))
	mock.ExpectQuery("SELECT id, completed_at FROM `_migrations` ORDER BY id").
		WillReturnError(errConnection)

	drv := mysql.NewDriver(mysql.DriverConfig{})

	ids, err := drv.CompletedMigrationIDs(context.Background(), args(conn, driver.DefaultMetadata))
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	_, err = drv.CompletedMigrationIDs(context.Background(), args(conn, driver.DefaultMetadata))
	assert.ErrorIs(t, err, errConnection)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAndUnregister(t *testing.T) {
	t.Parallel()

	conn, mock := newMock(t)
	mock.ExpectExec("INSERT INTO `_migrations` (id, completed_at) VALUES (?, ?)").
		WithArgs("01-a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM `_migrations` WHERE id = ?").
		WithArgs("01-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `_migrations` WHERE id = ?").
		WithArgs("02-b").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `_migrations` (id, completed_at) VALUES (?, ?)").
		WithArgs("03-c", sqlmock.AnyArg()).
		WillReturnError(errConnection)

	drv := mysql.NewDriver(mysql.DriverConfig{})
	ctx := context.Background()
	reg := func(id string) driver.RegistrationArgs[*sql.DB] {
		return driver.RegistrationArgs[*sql.DB]{Args: args(conn, driver.DefaultMetadata), ID: id}
	}

	assert.NoError(t, drv.RegisterMigration(ctx, reg("01-a")))
	assert.NoError(t, drv.UnregisterMigration(ctx, reg("01-a")))
	assert.NoError(t, drv.UnregisterMigration(ctx, reg("02-b")), "removing an absent record is a no-op")
	assert.ErrorIs(t, drv.RegisterMigration(ctx, reg("03-c")), errConnection)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverIsValid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, driver.Validate[*sql.DB](mysql.NewDriver(mysql.DriverConfig{})))
}
