package henka

import (
	"context"
	"database/sql"
	"io/fs"
	"os"

	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/migration"
	"github.com/root-talis/henka/v2/source"
	"github.com/root-talis/henka/v2/source/files"
	"github.com/root-talis/henka/v2/source/sqlscript"
)

// Option overrides one of the Migrator's defaults.
type Option[DB any] func(cfg *config[DB])

type config[DB any] struct {
	metadata       string
	retriever      source.Retriever[DB]
	loader         files.Loader[DB]
	fsys           fs.FS
	directory      string
	extension      string
	verify         migration.Verifier[DB]
	logger         logger.Logger
	validateDriver func(drv driver.Driver[DB]) error
	runner         Runner[DB]
}

func defaultConfig[DB any]() config[DB] {
	return config[DB]{
		metadata:       driver.DefaultMetadata,
		directory:      files.DefaultDirectory,
		extension:      files.DefaultExtension,
		verify:         migration.IsValid[DB],
		logger:         logger.Default(),
		validateDriver: driver.Validate[DB],
		runner:         RunMigrations[DB],
	}
}

// WithMetadata sets the table, collection, bucket or key that holds
// completion records.
func WithMetadata[DB any](metadata string) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.metadata = metadata
	}
}

// WithRetriever replaces migration discovery entirely.
func WithRetriever[DB any](retriever source.Retriever[DB]) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.retriever = retriever
	}
}

// WithLoader keeps file based discovery but loads units with loader.
func WithLoader[DB any](loader files.Loader[DB]) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.loader = loader
	}
}

// WithDirectory points file based discovery at directory inside fsys and
// only considers files ending with extension. Empty values keep the defaults.
func WithDirectory[DB any](fsys fs.FS, directory, extension string) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.fsys = fsys
		if directory != "" {
			cfg.directory = directory
		}
		if extension != "" {
			cfg.extension = extension
		}
	}
}

// WithVerifier replaces migration.IsValid as the predicate deciding which
// loaded units may run.
func WithVerifier[DB any](verify migration.Verifier[DB]) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.verify = verify
	}
}

func WithLogger[DB any](log logger.Logger) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.logger = log
	}
}

func WithDriverValidator[DB any](validate func(drv driver.Driver[DB]) error) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.validateDriver = validate
	}
}

func WithRunner[DB any](runner Runner[DB]) Option[DB] {
	return func(cfg *config[DB]) {
		cfg.runner = runner
	}
}

// ---

// filesRetriever builds the default retriever. SQL script files are used for
// *sql.DB handles; other handle types need WithLoader.
func (cfg *config[DB]) filesRetriever() (source.Retriever[DB], error) {
	load := cfg.loader
	if load == nil {
		sqlLoad, ok := interface{}(sqlscript.Load).(func(fs.FS, string) (migration.Unit[DB], error))
		if !ok {
			return nil, ErrNoRetriever
		}
		load = sqlLoad
	}

	fsys := cfg.fsys
	if fsys == nil {
		fsys = os.DirFS(".")
	}

	directory, extension := cfg.directory, cfg.extension

	// resolve the directory on every run, it may appear after New
	return func(ctx context.Context, opts source.Options[DB]) ([]migration.Unit[DB], error) {
		retrieve, err := files.NewFilesSource(fsys, directory, extension, load)
		if err != nil {
			return nil, err
		}
		return retrieve(ctx, opts)
	}, nil
}

var _ files.Loader[*sql.DB] = sqlscript.Load
