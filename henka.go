// Package henka applies and reverts database migrations.
//
// A Migrator ties together a database handle, a driver that records which
// migrations have been applied, a retriever that discovers migration units
// and a runner that executes them one at a time.
package henka

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/source"
)

// ---

type Migrator interface {
	// Migrate applies (Up) or reverts (Down) every outstanding migration
	// except those listed in exclude.
	Migrate(ctx context.Context, direction migration.Direction, exclude ...string) (migration.Report, error)
	Up(ctx context.Context, exclude ...string) (migration.Report, error)
	Down(ctx context.Context, exclude ...string) (migration.Report, error)
	Status(ctx context.Context) (*StatusResult, error)
}

var (
	ErrNoDatabase  = errors.New("a connected database handle must be passed to henka.New")
	ErrNoRetriever = errors.New("no default migration loader for this database handle type, use WithRetriever or WithLoader")
)

// ---

type henkaImpl[DB any] struct {
	db       DB
	driver   driver.Driver[DB]
	metadata string
	retrieve source.Retriever[DB]
	verify   migration.Verifier[DB]
	logger   logger.Logger
	run      Runner[DB]
}

// ---

// New validates its arguments and returns a Migrator. It does not touch the
// database.
func New[DB any](db DB, drv driver.Driver[DB], opts ...Option[DB]) (Migrator, error) {
	if isNil(db) {
		return nil, ErrNoDatabase
	}

	cfg := defaultConfig[DB]()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validateDriver(drv); err != nil {
		return nil, err
	}

	retrieve := cfg.retriever
	if retrieve == nil {
		var err error
		if retrieve, err = cfg.filesRetriever(); err != nil {
			return nil, err
		}
	}

	return &henkaImpl[DB]{
		db:       db,
		driver:   drv,
		metadata: cfg.metadata,
		retrieve: retrieve,
		verify:   cfg.verify,
		logger:   cfg.logger,
		run:      cfg.runner,
	}, nil
}

func (m *henkaImpl[DB]) Up(ctx context.Context, exclude ...string) (migration.Report, error) {
	return m.Migrate(ctx, migration.Up, exclude...)
}

func (m *henkaImpl[DB]) Down(ctx context.Context, exclude ...string) (migration.Report, error) {
	return m.Migrate(ctx, migration.Down, exclude...)
}

func (m *henkaImpl[DB]) Migrate(
	ctx context.Context,
	direction migration.Direction,
	exclude ...string,
) (migration.Report, error) {
	if direction != migration.Up && direction != migration.Down {
		return nil, fmt.Errorf("%w: %q", migration.ErrUnknownDirection, rune(direction))
	}

	migrateUp := direction == migration.Up

	m.logger.Debugf("○ Initializing database migrations, direction is %s.", direction)

	args := m.args()

	if err := m.driver.Init(ctx, args); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations metadata: %w", err)
	}

	completedIDs, err := m.driver.CompletedMigrationIDs(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	completed := migration.NewIDSet(completedIDs...)

	excluded := migration.NewIDSet(exclude...)
	if migrateUp {
		excluded = excluded.Union(completed)
	}

	units, err := m.retrieve(ctx, source.Options[DB]{
		Exclude: excluded,
		Verify:  m.verify,
		Logger:  m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	// only units that were actually applied can be reverted
	if !migrateUp {
		units = onlyCompleted(units, completed)
	}

	if len(units) == 0 {
		m.logger.Infof("⚡ No pending database migrations.")
		return migration.Report{}, nil
	}

	m.logger.Debugf("○ Will attempt to perform %d migrations in total.", len(units))

	register := m.driver.RegisterMigration
	if !migrateUp {
		register = m.driver.UnregisterMigration
	}

	report, err := m.run(ctx, RunArgs[DB]{
		Units:           units,
		Direction:       direction,
		DB:              m.db,
		Metadata:        m.metadata,
		Logger:          m.logger,
		RegisterSuccess: register,
	})
	if err != nil {
		return report, err
	}

	m.logSummary(direction, report)

	return report, nil
}

func (m *henkaImpl[DB]) args() driver.Args[DB] {
	return driver.Args[DB]{
		DB:       m.db,
		Metadata: m.metadata,
		Logger:   m.logger,
	}
}

func (m *henkaImpl[DB]) logSummary(direction migration.Direction, report migration.Report) {
	verb := "Applied"
	if direction == migration.Down {
		verb = "Reverted"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s the following database migrations:", verb)
	for _, info := range report {
		fmt.Fprintf(&b, "\n- %s: %s sec", info.ID, info.Seconds())
	}

	m.logger.Infof("%s", b.String())
}

func onlyCompleted[DB any](units []migration.Unit[DB], completed migration.IDSet) []migration.Unit[DB] {
	result := make([]migration.Unit[DB], 0, len(units))
	for _, unit := range units {
		if completed.Has(unit.ID) {
			result = append(result, unit)
		}
	}
	return result
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}

	value := reflect.ValueOf(v)
	switch value.Kind() { //nolint:exhaustive
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return value.IsNil()
	}

	return false
}
