package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/mysql"
	"github.com/root-talis/henka/v2/driver/sqlite"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/metrics"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/source/files"
)

const envPrefix = "HENKA"

var (
	ErrUnknownDriver = errors.New("unknown database driver, supported drivers are mysql and sqlite")
	ErrNoDSN         = errors.New("database connection string is not set, use --dsn or HENKA_DSN")
)

// settings is the resolved configuration of a single invocation.
type settings struct {
	Driver      string
	DSN         string
	Database    string
	Dir         string
	Metadata    string
	LogLevel    zapcore.Level
	Output      string
	Pushgateway string
}

type app struct {
	v      *viper.Viper
	out    io.Writer
	logOut io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		out:    out,
		logOut: os.Stderr,
	}

	var (
		configFile string
		level      zapcore.Level
	)

	cmd := &cobra.Command{
		Use:           "henka",
		Short:         "Apply and revert database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configFile == "" {
				return nil
			}
			a.v.SetConfigFile(configFile)
			if err := a.v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			return nil
		},
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to a YAML config file")
	flags.String("driver", "sqlite", "database driver: mysql or sqlite")
	flags.String("dsn", "", "database connection string")
	flags.String("database", "", "mysql database holding the migrations table (default: current database)")
	flags.String("dir", files.DefaultDirectory, "directory with migration scripts")
	flags.String("metadata", driver.DefaultMetadata, "name of the migrations table")
	levelVar(flags, &level, "log-level", zapcore.InfoLevel, "log level: debug, info, warn or error")
	flags.StringP("output", "o", outputText, "output format: text, json or yaml")
	flags.String("pushgateway", "", "push run metrics to this Prometheus Pushgateway URL")

	a.v.SetEnvPrefix(envPrefix)
	a.v.AutomaticEnv()
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := a.v.BindPFlags(flags); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		a.newMigrateCommand(migration.Up),
		a.newMigrateCommand(migration.Down),
		a.newStatusCommand(),
	)

	return cmd
}

func (a *app) settings() (settings, error) {
	level, err := parseLevel(a.v.GetString("log-level"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		Driver:      strings.ToLower(a.v.GetString("driver")),
		DSN:         a.v.GetString("dsn"),
		Database:    a.v.GetString("database"),
		Dir:         a.v.GetString("dir"),
		Metadata:    a.v.GetString("metadata"),
		LogLevel:    level,
		Output:      strings.ToLower(a.v.GetString("output")),
		Pushgateway: a.v.GetString("pushgateway"),
	}

	if s.DSN == "" {
		return settings{}, ErrNoDSN
	}

	if err := checkOutput(s.Output); err != nil {
		return settings{}, err
	}

	return s, nil
}

func (a *app) newMigrateCommand(direction migration.Direction) *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   direction.String(),
		Short: fmt.Sprintf("Run all %s migrations that are outstanding", direction),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}

			rm := metrics.NewRunnerMetrics()
			runErr := a.withMigrator(cmd.Context(), s, rm, func(ctx context.Context, m henka.Migrator) error {
				report, err := m.Migrate(ctx, direction, exclude...)
				if report != nil {
					if writeErr := writeReport(a.out, s.Output, direction, report); writeErr != nil && err == nil {
						err = writeErr
					}
				}
				return err
			})

			if s.Pushgateway != "" {
				if err := pushMetrics(s.Pushgateway, rm); err != nil {
					return errors.Join(runErr, err)
				}
			}

			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "ids of migrations to leave untouched")

	return cmd
}

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied, pending and missing migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}

			return a.withMigrator(cmd.Context(), s, nil, func(ctx context.Context, m henka.Migrator) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return writeStatus(a.out, s.Output, status)
			})
		},
	}
}

// withMigrator opens the database, builds a Migrator over the scripts in
// s.Dir and passes it to fn. Runs are recorded in rm when it is not nil.
func (a *app) withMigrator(
	ctx context.Context,
	s settings,
	rm *metrics.RunnerMetrics,
	fn func(ctx context.Context, m henka.Migrator) error,
) error {
	conn, drv, err := openDatabase(s)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := []henka.Option[*sql.DB]{
		henka.WithDirectory[*sql.DB](os.DirFS(s.Dir), ".", ""),
		henka.WithMetadata[*sql.DB](s.Metadata),
		henka.WithLogger[*sql.DB](logger.NewConsole(s.LogLevel, a.logOut)),
	}
	if rm != nil {
		opts = append(opts, henka.WithRunner[*sql.DB](metrics.Instrument(rm, henka.RunMigrations[*sql.DB])))
	}

	m, err := henka.New[*sql.DB](conn, drv, opts...)
	if err != nil {
		return err
	}

	return fn(ctx, m)
}

func openDatabase(s settings) (*sql.DB, driver.Driver[*sql.DB], error) {
	var drv driver.Driver[*sql.DB]

	switch s.Driver {
	case "mysql":
		drv = mysql.NewDriver(mysql.DriverConfig{DatabaseName: s.Database})
	case "sqlite":
		drv = sqlite.NewDriver()
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.Driver)
	}

	conn, err := sql.Open(s.Driver, s.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return conn, drv, nil
}

func pushMetrics(url string, rm *metrics.RunnerMetrics) error {
	reg := prometheus.NewRegistry()
	if err := rm.Register(reg); err != nil {
		return err
	}

	if err := push.New(url, "henka").Gatherer(reg).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}

	return nil
}
