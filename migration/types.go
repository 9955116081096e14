package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/root-talis/henka/v2/logger"
)

type Direction rune

const (
	Down Direction = 'd'
	Up   Direction = 'u'
)

var ErrUnknownDirection = errors.New("unknown migration direction")

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "up"/"down" and their one-letter forms "u"/"d".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u":
		return Up, nil
	case "down", "d":
		return Down, nil
	default:
		return 0, fmt.Errorf("%w: \"%s\"", ErrUnknownDirection, s)
	}
}

// ---

// Action is one direction of a migration. It receives the live database
// handle and may perform arbitrary side effects against it.
type Action[DB any] func(ctx context.Context, db DB, log logger.Logger) error

// Unit is a single reversible change identified by ID.
type Unit[DB any] struct {
	ID   string
	Up   Action[DB]
	Down Action[DB]

	// Meta holds free-form tags attached by the loader. The default
	// verifier ignores it.
	Meta map[string]string
}

// Action returns the unit's action for direction d.
func (u Unit[DB]) Action(d Direction) Action[DB] {
	if d == Down {
		return u.Down
	}
	return u.Up
}

// ---

// Record is the persisted fact that migration ID has been applied.
type Record struct {
	ID          string
	CompletedAt time.Time
}

// ---

// Info describes one executed unit.
type Info struct {
	ID       string
	Duration time.Duration
}

// Seconds formats the duration as seconds with millisecond precision.
func (i Info) Seconds() string {
	return fmt.Sprintf("%.3f", i.Duration.Seconds())
}

// Report lists executed units in execution order.
type Report []Info

func (r Report) IDs() []string {
	ids := make([]string, len(r))
	for i, info := range r {
		ids[i] = info.ID
	}
	return ids
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// State is the status of a single migration as seen by an inspection run.
// CompletedAt is zero for pending migrations and for drivers that only
// report ids.
type State struct {
	ID          string
	Status      Status
	CompletedAt time.Time
}
