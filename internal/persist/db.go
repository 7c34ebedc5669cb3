// Package persist stores run metadata for executed scripts in PostgreSQL.
// Resource and timer tables are never persisted; only per-run counters are.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bruce-go/scripthost/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// DB is the journal database: a pgx pool whose schema is current.
type DB struct {
	Pool    *pgxpool.Pool
	Version int64 // schema version after migration
	log     *zap.Logger
}

// Open connects, verifies the connection and applies pending migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("open journal: empty dsn")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect journal db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err = pool.Ping(pingCtx)
	cancel()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}

	version, err := migrate(ctx, pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("journal database ready",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.Int64("schema_version", version))

	return &DB{Pool: pool, Version: version, log: log}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}
