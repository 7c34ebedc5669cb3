package persist

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

// migrationFS exposes the embedded SQL files at the root, as goose expects.
func migrationFS() (fs.FS, error) {
	return fs.Sub(embedded, "migrations")
}

// migrate brings the journal schema up to date and returns its version.
func migrate(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) (int64, error) {
	fsys, err := migrationFS()
	if err != nil {
		return 0, fmt.Errorf("migration files: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return 0, fmt.Errorf("migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		log.Debug("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration))
	}

	return provider.GetDBVersion(ctx)
}
