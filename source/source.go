package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
)

// Options control a single retrieval.
type Options[DB any] struct {
	// Exclude lists ids that must not be loaded at all.
	Exclude migration.IDSet
	// Verify decides whether a loaded unit is usable. Defaults to migration.IsValid.
	Verify migration.Verifier[DB]
	Logger logger.Logger
}

// Retriever yields migration units in ascending id order.
type Retriever[DB any] func(ctx context.Context, opts Options[DB]) ([]migration.Unit[DB], error)

var (
	ErrMigrationDuplicated = errors.New("migration id already exists")
	ErrInvalidMigration    = errors.New("not a valid migration (must provide both up and down actions)")
)

// ---

// Candidate is a discovered but not yet loaded migration.
type Candidate[DB any] struct {
	ID string
	// Origin tells where the candidate came from, e.g. a file path.
	Origin string
	Load   func(ctx context.Context) (migration.Unit[DB], error)
}

// Result is the outcome of loading one candidate: either Unit or Err is set.
type Result[DB any] struct {
	ID     string
	Origin string
	Unit   migration.Unit[DB]
	Err    error
}

// WithDefaults fills unset options.
func (opts Options[DB]) WithDefaults() Options[DB] {
	if opts.Verify == nil {
		opts.Verify = migration.IsValid[DB]
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Exclude == nil {
		opts.Exclude = migration.IDSet{}
	}
	return opts
}

// Resolve loads and verifies every candidate whose id is not excluded.
// Candidates are processed in ascending id order and each one yields a Result.
func Resolve[DB any](ctx context.Context, candidates []Candidate[DB], opts Options[DB]) []Result[DB] {
	opts = opts.WithDefaults()

	sorted := make([]Candidate[DB], len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	seen := make(migration.IDSet, len(sorted))
	results := make([]Result[DB], 0, len(sorted))

	for _, candidate := range sorted {
		if opts.Exclude.Has(candidate.ID) {
			continue
		}

		result := Result[DB]{ID: candidate.ID, Origin: candidate.Origin}

		switch {
		case seen.Has(candidate.ID):
			result.Err = fmt.Errorf("%w: %s", ErrMigrationDuplicated, candidate.ID)
		default:
			result.Unit, result.Err = load(ctx, candidate, opts.Verify)
		}

		seen.Add(candidate.ID)
		results = append(results, result)
	}

	return results
}

func load[DB any](ctx context.Context, candidate Candidate[DB], verify migration.Verifier[DB]) (migration.Unit[DB], error) {
	unit, err := candidate.Load(ctx)
	if err != nil {
		return migration.Unit[DB]{}, err
	}

	unit.ID = candidate.ID

	if !verify(unit) {
		return migration.Unit[DB]{}, ErrInvalidMigration
	}

	return unit, nil
}

// Partition splits results into usable units and failures, keeping order.
func Partition[DB any](results []Result[DB]) ([]migration.Unit[DB], []Result[DB]) {
	units := make([]migration.Unit[DB], 0, len(results))
	var failures []Result[DB]

	for _, result := range results {
		if result.Err != nil {
			failures = append(failures, result)
			continue
		}
		units = append(units, result.Unit)
	}

	return units, failures
}

// Collect resolves candidates and returns the usable units. Failed
// candidates are logged and left out.
func Collect[DB any](ctx context.Context, candidates []Candidate[DB], opts Options[DB]) []migration.Unit[DB] {
	opts = opts.WithDefaults()

	units, failures := Partition(Resolve(ctx, candidates, opts))
	for _, failure := range failures {
		opts.Logger.Errorf("❌ Failed to include migration %s: %s", failure.Origin, failure.Err)
	}

	return units
}

// ---

// Static serves a fixed set of units, e.g. migrations compiled into the binary.
func Static[DB any](units ...migration.Unit[DB]) Retriever[DB] {
	candidates := make([]Candidate[DB], len(units))
	for i, unit := range units {
		unit := unit
		candidates[i] = Candidate[DB]{
			ID:     unit.ID,
			Origin: fmt.Sprintf("\"%s\"", unit.ID),
			Load: func(context.Context) (migration.Unit[DB], error) {
				return unit, nil
			},
		}
	}

	return func(ctx context.Context, opts Options[DB]) ([]migration.Unit[DB], error) {
		return Collect(ctx, candidates, opts), nil
	}
}
