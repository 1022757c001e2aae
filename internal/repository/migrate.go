package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

// ErrMigrationsUnavailable is returned when the repository has no pool.
var ErrMigrationsUnavailable = errors.New("migrations require a pgx pool")

// Migrate applies the embedded goose migrations.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.pool == nil {
		return ErrMigrationsUnavailable
	}

	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
