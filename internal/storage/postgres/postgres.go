// Package postgres adapts jackc/pgx against the repository, chunk
// writer, retrieval channel, and audit store ports (spec §6.2).
package postgres

import (
	"context"
	"database/sql"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	pgvecpgx "github.com/pgvector/pgvector-go/pgx"
	"github.com/pressly/goose/v3"

	"github.com/SaintWyss/ragcore/internal/apperrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store bundles the connection pool shared by the vector-aware
// repository adapters (Pool) and the database/sql handle used by the
// audit store, which needs no custom type registration and is
// exercised with go-sqlmock in tests (DB).
type Store struct {
	Pool *pgxpool.Pool
	DB   *sql.DB
}

// Connect parses url and establishes a pool, using maxOpenConns as the
// pool's MaxConns and maxIdleConns as its MinConns; a non-positive value
// keeps the pgxpool default.
func Connect(ctx context.Context, url string, maxOpenConns, maxIdleConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "invalid database URL")
	}
	if maxOpenConns > 0 {
		poolCfg.MaxConns = int32(maxOpenConns)
	}
	if maxIdleConns > 0 {
		poolCfg.MinConns = int32(maxIdleConns)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvecpgx.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to open database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "database unreachable")
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := db.PingContext(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "database unreachable")
	}

	return &Store{Pool: pool, DB: db}, nil
}

// Migrate applies every pending embedded migration via goose.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set goose dialect")
	}
	if err := goose.UpContext(ctx, s.DB, "migrations"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to apply migrations")
	}
	return nil
}

// Close releases the pool and its derived database/sql handle.
func (s *Store) Close() {
	s.DB.Close()
	s.Pool.Close()
}
