//nolint:gochecknoglobals
package mysql_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/mysql"
	"github.com/root-talis/henka/v2/logger"
)

// RDBMS versions to test against
var versions = []string{
	"mysql:8.0",
	"mysql:5.7",

	"mariadb:10.7",
	"mariadb:10.4",
}

var (
	dropDatabase      = "DROP DATABASE testDatabase;"
	initEmptyDatabase = "CREATE DATABASE testDatabase;"
	selectCompleted   = "select id from testDatabase." + driver.DefaultMetadata

	testMigrations = fstest.MapFS{
		"migrations":                                {Mode: fs.ModeDir},
		"migrations/20220118115519-createUsers.sql": {Data: []byte(
			"-- +henka Up\n" +
				"CREATE TABLE testDatabase.users (id int not null, primary key (id));\n" +
				"-- +henka Down\n" +
				"DROP TABLE testDatabase.users;\n",
		)},
		"migrations/20220118120101-createPermissions.sql": {Data: []byte(
			"-- +henka Up\n" +
				"CREATE TABLE testDatabase.permissions (id int not null, primary key (id));\n" +
				"-- +henka Down\n" +
				"DROP TABLE testDatabase.permissions;\n",
		)},
	}
)

type validator = func(*testing.T, *sql.Rows)
type validateStatements = map[string]validator

var doNothing = func(t *testing.T, _ *sql.Rows) {
	t.Helper()
}

func countRows(expected int) validator {
	return func(t *testing.T, rows *sql.Rows) {
		t.Helper()

		var count int
		for rows.Next() {
			count++
		}
		assert.Equal(t, expected, count)
	}
}

func TestDriverAgainstServer(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping integration test for driver/mysql")
	}

	runForAllMysqlVersions(t, "Driver", func(t *testing.T, version string, conn *sql.DB) {
		t.Helper()

		withDatabase(t, conn, func() {
			ctx := context.Background()
			drv := mysql.NewDriver(mysql.DriverConfig{DatabaseName: "testDatabase"})
			a := args(conn, "migrations_log")

			require.NoError(t, drv.Init(ctx, a))
			require.NoError(t, drv.Init(ctx, a), "init must be idempotent")

			reg := driver.RegistrationArgs[*sql.DB]{Args: a, ID: "01-a"}
			require.NoError(t, drv.RegisterMigration(ctx, reg))
			assert.Error(t, drv.RegisterMigration(ctx, reg), "ids are unique")

			records, err := drv.CompletedMigrations(ctx, a)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "01-a", records[0].ID)
			assert.False(t, records[0].CompletedAt.IsZero())

			require.NoError(t, drv.UnregisterMigration(ctx, reg))
			require.NoError(t, drv.UnregisterMigration(ctx, reg))

			ids, err := drv.CompletedMigrationIDs(ctx, a)
			require.NoError(t, err)
			assert.Empty(t, ids)

			runValidationStatements(t, validateStatements{
				"select 1 from testDatabase.migrations_log": doNothing,
			}, conn)
		})
	})
}

func TestMigrateAgainstServer(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping integration test for driver/mysql")
	}

	runForAllMysqlVersions(t, "Migrate", func(t *testing.T, version string, conn *sql.DB) {
		t.Helper()

		withDatabase(t, conn, func() {
			ctx := context.Background()
			m, err := henka.New[*sql.DB](conn, mysql.NewDriver(mysql.DriverConfig{DatabaseName: "testDatabase"}),
				henka.WithDirectory[*sql.DB](testMigrations, "", ""),
				henka.WithLogger[*sql.DB](logger.Nop()),
			)
			require.NoError(t, err)

			report, err := m.Up(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"20220118115519-createUsers", "20220118120101-createPermissions"}, report.IDs())

			runValidationStatements(t, validateStatements{
				"select 1 from testDatabase.users":       doNothing,
				"select 1 from testDatabase.permissions": doNothing,
				selectCompleted:                          countRows(2),
			}, conn)

			report, err = m.Up(ctx)
			require.NoError(t, err)
			assert.Empty(t, report)

			report, err = m.Down(ctx, "20220118115519-createUsers")
			require.NoError(t, err)
			assert.Equal(t, []string{"20220118120101-createPermissions"}, report.IDs())

			runValidationStatements(t, validateStatements{
				"select 1 from testDatabase.users": doNothing,
				selectCompleted:                    countRows(1),
			}, conn)
		})
	})
}

//
// --- utility stuff ---------------------
//

func withDatabase(t *testing.T, conn *sql.DB, test func()) {
	t.Helper()

	if _, err := conn.Exec(initEmptyDatabase); err != nil {
		t.Fatalf("error when initializing database: %s", err)
	}

	defer func() {
		if _, err := conn.Exec(dropDatabase); err != nil {
			t.Fatalf("falied to drop database after test: %s", err)
		}
	}()

	test()
}

func runForAllMysqlVersions(t *testing.T, baseName string, test func(t *testing.T, version string, conn *sql.DB)) {
	t.Helper()

	for _, version := range versions {
		version := version
		testName := fmt.Sprintf("%s@%s", baseName, version)
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			rootPassword := randomPassword()
			t.Logf("%s - root password: %s", testName, rootPassword)

			ctx, mysqlC := makeTestContainer(t, version, rootPassword)
			defer func() {
				err := mysqlC.Terminate(ctx)
				if err != nil {
					t.Fatalf("failed to terminate test container: %s", err)
				}
			}()

			conn := connect(ctx, t, mysqlC, rootPassword)
			defer func() {
				err := conn.Close()
				if err != nil {
					t.Fatalf("failed to close connection to test database: %s", err)
				}
			}()

			test(t, version, conn)
		})
	}
}

func makeTestContainer(t *testing.T, version string, rootPassword string) (context.Context, testcontainers.Container) {
	t.Helper()

	var env map[string]string

	if strings.HasPrefix(version, "mariadb") {
		env = map[string]string{
			"MARIADB_ROOT_PASSWORD": rootPassword,
		}
	} else {
		env = map[string]string{
			"MYSQL_ROOT_PASSWORD": rootPassword,
		}
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        version,
		ExposedPorts: []string{"3306/tcp"},
		WaitingFor:   wait.ForListeningPort("3306"),
		Env:          env,
		Cmd: []string{
			"--table_definition_cache=10",
			"--performance_schema=0",
		},
	}

	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	return ctx, mysqlC
}

func connect(ctx context.Context, t *testing.T, mysqlC testcontainers.Container, rootPassword string) *sql.DB {
	t.Helper()

	endpoint, err := mysqlC.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	conn, err := sql.Open("mysql",
		fmt.Sprintf("root:%s@tcp(%s)/mysql?multiStatements=true", rootPassword, endpoint))

	if err != nil {
		t.Fatal(err)
	}

	return conn
}

func randomPassword() string {
	const length = 8
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("failed to generate a random password: %w", err))
	}
	return fmt.Sprintf("%x", b)[:length]
}

func runValidationStatements(t *testing.T, validateStatements validateStatements, conn *sql.DB) {
	t.Helper()

	for stmt, validate := range validateStatements {
		func() {
			rows, err := conn.Query(stmt)
			if err != nil {
				t.Fatalf("error when running validation statement \"%s\": %s", stmt, err)
			}
			if err = rows.Err(); err != nil {
				t.Fatalf("error when running validation statement \"%s\": %s", stmt, err)
			}
			defer rows.Close()

			validate(t, rows)
		}()
	}
}
