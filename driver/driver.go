package driver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
)

// DefaultMetadata names the table, collection, bucket or key holding
// completion records when none is configured.
const DefaultMetadata = "_migrations"

// Args is passed to every driver call.
type Args[DB any] struct {
	DB       DB
	Metadata string
	Logger   logger.Logger
}

// RegistrationArgs identifies the migration being registered or unregistered.
type RegistrationArgs[DB any] struct {
	Args[DB]
	ID string
}

// RegisterFunc records (or removes) the completion of a single migration.
type RegisterFunc[DB any] func(ctx context.Context, args RegistrationArgs[DB]) error

// Driver tracks which migrations have been applied to a database.
type Driver[DB any] interface {
	// Init prepares the metadata location. It must be safe to call repeatedly.
	Init(ctx context.Context, args Args[DB]) error
	// CompletedMigrationIDs lists the ids of every applied migration, in any order.
	CompletedMigrationIDs(ctx context.Context, args Args[DB]) ([]string, error)
	RegisterMigration(ctx context.Context, args RegistrationArgs[DB]) error
	// UnregisterMigration removes the record for args.ID. A missing record is not an error.
	UnregisterMigration(ctx context.Context, args RegistrationArgs[DB]) error
}

// RecordLister is implemented by drivers that can report completion times.
type RecordLister[DB any] interface {
	CompletedMigrations(ctx context.Context, args Args[DB]) ([]migration.Record, error)
}

// Capability names as reported by Validate.
const (
	CapInit                  = "Init"
	CapCompletedMigrationIDs = "CompletedMigrationIDs"
	CapRegisterMigration     = "RegisterMigration"
	CapUnregisterMigration   = "UnregisterMigration"
)

var (
	ErrInvalidDriver   = errors.New("driver must implement Init, CompletedMigrationIDs, RegisterMigration and UnregisterMigration")
	ErrInvalidLogTable = errors.New("an error has occurred when reading migrations table")
)

// ---

// Funcs builds a Driver out of plain functions.
type Funcs[DB any] struct {
	InitFunc                  func(ctx context.Context, args Args[DB]) error
	CompletedMigrationIDsFunc func(ctx context.Context, args Args[DB]) ([]string, error)
	RegisterMigrationFunc     RegisterFunc[DB]
	UnregisterMigrationFunc   RegisterFunc[DB]
}

func (f *Funcs[DB]) Init(ctx context.Context, args Args[DB]) error {
	return f.InitFunc(ctx, args)
}

func (f *Funcs[DB]) CompletedMigrationIDs(ctx context.Context, args Args[DB]) ([]string, error) {
	return f.CompletedMigrationIDsFunc(ctx, args)
}

func (f *Funcs[DB]) RegisterMigration(ctx context.Context, args RegistrationArgs[DB]) error {
	return f.RegisterMigrationFunc(ctx, args)
}

func (f *Funcs[DB]) UnregisterMigration(ctx context.Context, args RegistrationArgs[DB]) error {
	return f.UnregisterMigrationFunc(ctx, args)
}

func (f *Funcs[DB]) missing() []string {
	var missing []string
	if f.InitFunc == nil {
		missing = append(missing, CapInit)
	}
	if f.CompletedMigrationIDsFunc == nil {
		missing = append(missing, CapCompletedMigrationIDs)
	}
	if f.RegisterMigrationFunc == nil {
		missing = append(missing, CapRegisterMigration)
	}
	if f.UnregisterMigrationFunc == nil {
		missing = append(missing, CapUnregisterMigration)
	}
	return missing
}

// ---

// Validate makes sure every capability of drv can be called.
func Validate[DB any](drv Driver[DB]) error {
	var missing []string

	switch d := drv.(type) {
	case nil:
		missing = []string{CapInit, CapCompletedMigrationIDs, CapRegisterMigration, CapUnregisterMigration}
	case *Funcs[DB]:
		if d == nil {
			return fmt.Errorf("%w: driver is nil", ErrInvalidDriver)
		}
		missing = d.missing()
	default:
		if v := reflect.ValueOf(drv); v.Kind() == reflect.Ptr && v.IsNil() {
			return fmt.Errorf("%w: driver is nil", ErrInvalidDriver)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidDriver, strings.Join(missing, ", "))
	}

	return nil
}
