// Package storage holds the PostgreSQL adapters behind the time-series
// repositories. Each entity store implements timeseries.Source for its record
// type; natural-key uniqueness is enforced by the schema, and batch inserts
// skip conflicting rows instead of failing.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowstore/internal/config"
	"flowstore/internal/symbols"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. The lock pins one pooled connection until released.
func TryAdvisoryLock(ctx context.Context, pool *pgxpool.Pool, key int64) (func(), bool, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// appendSymbolClause extends sql with the symbol predicate implied by the
// filter: nothing when empty, equality for one symbol, membership otherwise.
func appendSymbolClause(sql, column string, filter symbols.Filter, args []any) (string, []any) {
	if filter.IsEmpty() {
		return sql, args
	}
	if single, ok := filter.Single(); ok {
		args = append(args, single)
		return sql + " AND " + column + " = $" + strconv.Itoa(len(args)), args
	}
	args = append(args, filter.Values())
	return sql + " AND " + column + " = ANY($" + strconv.Itoa(len(args)) + ")", args
}

// appendLimitClause orders by the timestamp column descending and truncates
// when limit is positive, per the range query contract.
func appendLimitClause(sql, column string, limit int) string {
	if limit <= 0 {
		return sql
	}
	return sql + " ORDER BY " + column + " DESC LIMIT " + strconv.Itoa(limit)
}

// collectRows drains rows through scan, propagating the first failure.
func collectRows[R any](rows pgx.Rows, scan func(pgx.Rows) (R, error)) ([]R, error) {
	defer rows.Close()

	var out []R
	for rows.Next() {
		record, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
