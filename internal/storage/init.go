package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationPath = "migrations"

// runMigrations applies the embedded schema through a short-lived lib/pq
// connection so goose never shares the pgx pool.
func runMigrations(dsn string, log *zap.Logger) error {
	const op = "storage.migrations"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := goose.Up(db, migrationPath); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %v", op, err)
	}
	log.Info("database migrations applied")
	return nil
}
