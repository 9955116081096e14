// Package sqlscript loads migrations written as annotated SQL files:
//
//	-- +henka Meta author=jdoe
//	-- +henka Up
//	CREATE TABLE users (id int primary key);
//	-- +henka Down
//	DROP TABLE users;
//
// Each section is sent to the database as a single Exec call, so MySQL
// connections need multiStatements=true for sections holding more than one
// statement. A file without a Down section yields a unit that fails
// verification.
package sqlscript

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
)

const (
	directivePrefix = "-- +henka "

	// maxLineLength bounds a single script line, e.g. a bulk INSERT.
	maxLineLength = 16 << 20
)

var (
	ErrNoSections       = errors.New("migration script has neither an Up nor a Down section")
	ErrDuplicateSection = errors.New("migration script section is declared twice")
	ErrStatementOutside = errors.New("migration script has statements outside of Up and Down sections")
	ErrUnknownDirective = errors.New("unknown migration script directive")
	ErrMalformedMetaTag = errors.New("malformed Meta directive (key=value expected)")
)

// Script is a parsed migration file.
type Script struct {
	Up   *string
	Down *string
	Meta map[string]string
}

// Parse reads a script from r.
func Parse(r io.Reader) (*Script, error) { //nolint:cyclop
	script := Script{Meta: map[string]string{}}

	var (
		current *strings.Builder
		up      *strings.Builder
		down    *strings.Builder
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineLength)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, directivePrefix) {
			directive := strings.TrimSpace(strings.TrimPrefix(trimmed, directivePrefix))
			name, arg, _ := strings.Cut(directive, " ")

			switch strings.ToLower(name) {
			case "up":
				if up != nil {
					return nil, fmt.Errorf("%w: Up (line %d)", ErrDuplicateSection, lineNo)
				}
				up = &strings.Builder{}
				current = up
			case "down":
				if down != nil {
					return nil, fmt.Errorf("%w: Down (line %d)", ErrDuplicateSection, lineNo)
				}
				down = &strings.Builder{}
				current = down
			case "meta":
				key, value, ok := strings.Cut(strings.TrimSpace(arg), "=")
				if !ok || strings.TrimSpace(key) == "" {
					return nil, fmt.Errorf("%w: line %d", ErrMalformedMetaTag, lineNo)
				}
				script.Meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
			default:
				return nil, fmt.Errorf("%w \"%s\" on line %d", ErrUnknownDirective, name, lineNo)
			}

			continue
		}

		if current == nil {
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			return nil, fmt.Errorf("%w: line %d", ErrStatementOutside, lineNo)
		}

		current.WriteString(line)
		current.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migration script: %w", err)
	}

	if up == nil && down == nil {
		return nil, ErrNoSections
	}

	script.Up = body(up)
	script.Down = body(down)

	return &script, nil
}

func body(b *strings.Builder) *string {
	if b == nil {
		return nil
	}
	s := strings.TrimSpace(b.String())
	return &s
}

// Unit converts the script into a migration unit. A missing section leaves
// the corresponding action nil.
func (s *Script) Unit() migration.Unit[*sql.DB] {
	return migration.Unit[*sql.DB]{
		Up:   action(s.Up),
		Down: action(s.Down),
		Meta: s.Meta,
	}
}

func action(statements *string) migration.Action[*sql.DB] {
	if statements == nil {
		return nil
	}

	query := *statements

	return func(ctx context.Context, db *sql.DB, log logger.Logger) error {
		if query == "" {
			log.Debugf("○ Section is empty, nothing to execute.")
			return nil
		}

		_, err := db.ExecContext(ctx, query)
		return err
	}
}

// Load is a files.Loader reading a script from fsys.
func Load(fsys fs.FS, filePath string) (migration.Unit[*sql.DB], error) {
	f, err := fsys.Open(filePath)
	if err != nil {
		return migration.Unit[*sql.DB]{}, fmt.Errorf("failed to open migration script: %w", err)
	}
	defer f.Close()

	script, err := Parse(f)
	if err != nil {
		return migration.Unit[*sql.DB]{}, err
	}

	return script.Unit(), nil
}
