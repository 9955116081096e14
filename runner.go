package henka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
)

// RunArgs is everything a Runner needs to execute a batch.
type RunArgs[DB any] struct {
	// Units in ascending id order. Down runs walk them backwards.
	Units     []migration.Unit[DB]
	Direction migration.Direction
	DB        DB
	Metadata  string
	Logger    logger.Logger
	// RegisterSuccess is called after every successful action.
	RegisterSuccess driver.RegisterFunc[DB]
}

// Runner executes a batch of units in one direction.
type Runner[DB any] func(ctx context.Context, args RunArgs[DB]) (migration.Report, error)

var ErrMissingAction = errors.New("migration has no action for this direction")

// RunMigrations is the default Runner. Units are executed strictly one after
// another; the first failing action or registration stops the batch and its
// error is returned as is, together with the report of the units that
// completed before it.
func RunMigrations[DB any](ctx context.Context, args RunArgs[DB]) (migration.Report, error) {
	log := args.Logger
	if log == nil {
		log = logger.Default()
	}

	migrateUp := args.Direction == migration.Up
	arrow, action := "↗", "Applying"
	if !migrateUp {
		arrow, action = "↘", "Reverting"
	}

	units := args.Units
	if !migrateUp {
		units = reversed(units)
	}

	report := make(migration.Report, 0, len(units))

	for _, unit := range units {
		fn := unit.Action(args.Direction)
		if fn == nil {
			return report, fmt.Errorf("%w: %s", ErrMissingAction, unit.ID)
		}

		log.Debugf("%s %s migration \"%s\"", arrow, action, unit.ID)

		then := time.Now()

		if err := fn(ctx, args.DB, log); err != nil {
			log.Errorf("❌ Migration %s failed: %s", unit.ID, err)
			return report, err
		}

		info := migration.Info{
			ID:       unit.ID,
			Duration: time.Since(then).Round(time.Millisecond),
		}

		log.Debugf("✔ Migration %s successful, took %s sec.", unit.ID, info.Seconds())

		err := args.RegisterSuccess(ctx, driver.RegistrationArgs[DB]{
			Args: driver.Args[DB]{
				DB:       args.DB,
				Metadata: args.Metadata,
				Logger:   log,
			},
			ID: unit.ID,
		})
		if err != nil {
			log.Errorf("❌ Migration %s was executed but its completion state was not recorded: %s", unit.ID, err)
			return report, err
		}

		report = append(report, info)
	}

	return report, nil
}

func reversed[DB any](units []migration.Unit[DB]) []migration.Unit[DB] {
	result := make([]migration.Unit[DB], len(units))
	for i, unit := range units {
		result[len(units)-1-i] = unit
	}
	return result
}
