package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/pharosnet/txstore"
	"github.com/pharosnet/txstore/internal/config"
	"github.com/pharosnet/txstore/migrations"
)

type loader interface {
	Load(ctx context.Context, table txstore.TableID, decode txstore.Decoder) ([]txstore.Row, error)
}

// backend is the executor commits are mirrored to, if any.
type backend struct {
	executor txstore.Executor
	loader   loader
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.BackendConfig, logger zerolog.Logger) (b *backend, err error) {
	b = &backend{}
	switch cfg.Driver {
	case config.DriverMemory:
	case config.DriverPostgres, config.DriverSQLite:
		dialect := txstore.Postgres
		if cfg.Driver == config.DriverSQLite {
			dialect = txstore.SQLite
		}
		executor, openErr := txstore.OpenSQLExecutor(ctx, dialect, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if openErr != nil {
			err = openErr
			return
		}
		b.closers = append(b.closers, func() { _ = executor.Close() })
		b.executor, b.loader = executor, executor
		if cfg.Migrate {
			if dialect == txstore.SQLite {
				err = executor.EnsureSchema(ctx)
			} else {
				err = migratePostgres(cfg.DSN, logger)
			}
		}
	case config.DriverPgx:
		poolConfig, parseErr := pgxpool.ParseConfig(cfg.DSN)
		if parseErr != nil {
			err = fmt.Errorf("open pgx backend failed, %w", parseErr)
			return
		}
		if cfg.MaxOpenConns > 0 {
			poolConfig.MaxConns = int32(cfg.MaxOpenConns)
		}
		pool, poolErr := pgxpool.NewWithConfig(ctx, poolConfig)
		if poolErr != nil {
			err = fmt.Errorf("open pgx backend failed, %w", poolErr)
			return
		}
		b.closers = append(b.closers, pool.Close)
		if pingErr := pool.Ping(ctx); pingErr != nil {
			b.Close()
			err = fmt.Errorf("open pgx backend failed, %w", pingErr)
			return
		}
		executor := txstore.NewPgxExecutor(pool)
		b.executor, b.loader = executor, executor
		if cfg.Migrate {
			err = migrate(stdlib.OpenDBFromPool(pool), logger)
		}
	default:
		err = fmt.Errorf("unknown backend driver %q", cfg.Driver)
	}
	if err != nil {
		b.Close()
		b = nil
	}
	return
}

func migratePostgres(dsn string, logger zerolog.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration database failed, %w", err)
	}
	return migrate(db, logger)
}

// migrate applies the embedded migrations and closes db.
func migrate(db *sql.DB, logger zerolog.Logger) (err error) {
	migrator, err := migrations.NewMigrator(db, logger)
	if err != nil {
		_ = db.Close()
		return
	}
	defer func() { _ = migrator.Close() }()
	err = migrator.Up()
	return
}
