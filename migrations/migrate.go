// Package migrations embeds the schema migrations for both supported storage
// engines and applies them with goose. The per-engine directories carry the
// same logical schema; they differ only in dialect-specific column types.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedMigrations embed.FS

func Migrate(db *sql.DB, engine string) error {
	if db == nil {
		return fmt.Errorf("migration error: db is nil")
	}

	var dialect, dir string
	switch engine {
	case "postgres":
		dialect, dir = "pgx", "postgres"
	default:
		dialect, dir = "sqlite3", "sqlite"
	}

	sub, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return fmt.Errorf("migration error selecting %s directory: %w", dir, err)
	}
	goose.SetBaseFS(sub)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migration error setting dialect for db: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}
