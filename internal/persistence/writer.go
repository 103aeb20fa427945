// Package persistence implements the write-through path into a durable
// relational store: an upsert of (key, value) into kv_store via a pooled
// connection.
//
// If pool creation fails at startup the Writer is marked disabled;
// subsequent Upsert calls become no-ops and the node keeps serving
// requests in memory-only mode. A startup failure is logged as a warning,
// never treated as fatal.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const upsertStmt = `
INSERT INTO kv_store (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = $2
`

const createTableStmt = `
CREATE TABLE IF NOT EXISTS kv_store (
	key   TEXT PRIMARY KEY,
	value BYTEA
)
`

// Writer upserts (key, value) pairs into the kv_store table. A Writer with
// a nil pool is disabled and every Upsert call is a no-op.
type Writer struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New attempts to open a connection pool against dsn with MinConns=1,
// MaxConns=10 (DB_POOL = [1,10]) and ensures the kv_store table exists. On
// any failure it logs a warning and returns a disabled Writer rather than
// an error — persistence is an optional, best-effort path.
func New(ctx context.Context, dsn string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn == "" {
		logger.Warn("persistence: no DSN configured, running memory-only")
		return &Writer{logger: logger}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Warn("persistence: parse DSN failed, running memory-only", zap.Error(err))
		return &Writer{logger: logger}
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		logger.Warn("persistence: connect failed, running memory-only", zap.Error(err))
		return &Writer{logger: logger}
	}

	if _, err := pool.Exec(ctx, createTableStmt); err != nil {
		logger.Warn("persistence: schema setup failed, running memory-only", zap.Error(err))
		pool.Close()
		return &Writer{logger: logger}
	}

	logger.Info("persistence: connected to PostgreSQL")
	return &Writer{pool: pool, logger: logger}
}

// Enabled reports whether the pool initialized successfully.
func (w *Writer) Enabled() bool {
	return w != nil && w.pool != nil
}

// Upsert writes (key, value) into kv_store. It is a no-op returning nil
// when the writer is disabled.
func (w *Writer) Upsert(ctx context.Context, key string, value []byte) error {
	if !w.Enabled() {
		return nil
	}
	if _, err := w.pool.Exec(ctx, upsertStmt, key, value); err != nil {
		return fmt.Errorf("persistence: upsert %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying pool, if any.
func (w *Writer) Close() {
	if w != nil && w.pool != nil {
		w.pool.Close()
	}
}
