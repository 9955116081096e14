// Package files discovers migrations stored as files in a directory.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/source"
)

const (
	DefaultDirectory = "migrations"
	DefaultExtension = ".sql"
)

var ErrMigrationsDirectoryIsNotADirectory = errors.New("migrations directory is not a directory")

// Loader turns the file at filePath into a migration unit. The unit's ID is
// assigned by the caller.
type Loader[DB any] func(fsys fs.FS, filePath string) (migration.Unit[DB], error)

type filesSource[DB any] struct {
	fsys          fs.FS
	migrationsDir string
	extension     string
	load          Loader[DB]
}

// NewFilesSource returns a retriever over the files in directory whose names
// end with extension. Empty directory and extension fall back to
// DefaultDirectory and DefaultExtension.
func NewFilesSource[DB any](fsys fs.FS, directory, extension string, load Loader[DB]) (source.Retriever[DB], error) {
	if directory == "" {
		directory = DefaultDirectory
	}
	if extension == "" {
		extension = DefaultExtension
	}

	stat, err := fs.Stat(fsys, directory)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrMigrationsDirectoryIsNotADirectory, directory)
	}

	src := &filesSource[DB]{
		fsys:          fsys,
		migrationsDir: directory,
		extension:     extension,
		load:          load,
	}

	return src.retrieve, nil
}

func (src *filesSource[DB]) retrieve(ctx context.Context, opts source.Options[DB]) ([]migration.Unit[DB], error) {
	opts = opts.WithDefaults()

	dirEntries, err := fs.ReadDir(src.fsys, src.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	candidates := make([]source.Candidate[DB], 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		id, ok := src.idFromFileName(entry.Name())
		if !ok {
			continue
		}

		filePath := path.Join(src.migrationsDir, entry.Name())
		candidates = append(candidates, source.Candidate[DB]{
			ID:     id,
			Origin: filePath,
			Load: func(context.Context) (migration.Unit[DB], error) {
				return src.load(src.fsys, filePath)
			},
		})
	}

	opts.Logger.Debugf("○ Directory %s contains %d migration files.", src.migrationsDir, len(candidates))

	return source.Collect(ctx, candidates, opts), nil
}

func (src *filesSource[DB]) idFromFileName(fileName string) (string, bool) {
	if !strings.HasSuffix(fileName, src.extension) {
		return "", false
	}

	id := strings.TrimSuffix(fileName, src.extension)

	return id, id != ""
}
