package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/urlguard/urlguard/internal/config"
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/migrations"
)

// Storage engine names accepted in configuration.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// DB wraps the database handle together with the engine name so the
// repository and the migration runner know which dialect they talk to.
type DB struct {
	*sql.DB
	engine string
	logger *logger.Logger
}

// Connect opens the configured storage engine and runs pending migrations.
func Connect(ctx context.Context, cfg config.Storage, log *logger.Logger) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch cfg.Engine {
	case EngineSQLite, "":
		db, err = NewConnectSQLite(ctx, cfg, log)
	case EnginePostgres:
		db, err = NewConnectPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, cfg.Engine)
	}
	if err != nil {
		return nil, err
	}

	if err = db.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate %s storage: %w", db.engine, err)
	}
	return db, nil
}

func (db *DB) Migrate() error {
	return migrations.Migrate(db.DB, db.engine)
}
