package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	pruneTimeAndSaleSQL = `DELETE FROM time_and_sale WHERE created_on < $1;`
	pruneQuotesSQL      = `DELETE FROM quote_events WHERE created_on < $1;`
	pruneTradesSQL      = `DELETE FROM option_trades WHERE occurred_at < $1;`
)

// Pruner removes event rows older than the retention horizon. Alerts and
// volume snapshots are small daily aggregates and are kept indefinitely.
type Pruner struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPruner wires a pool into the pruner.
func NewPruner(pool *pgxpool.Pool, logger zerolog.Logger) *Pruner {
	return &Pruner{pool: pool, logger: logger.With().Str("component", "pruner").Logger()}
}

// CountBefore reports how many event rows PruneBefore would remove.
func (p *Pruner) CountBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"time_and_sale", `SELECT count(*) FROM time_and_sale WHERE created_on < $1;`},
		{"quote_events", `SELECT count(*) FROM quote_events WHERE created_on < $1;`},
		{"option_trades", `SELECT count(*) FROM option_trades WHERE occurred_at < $1;`},
	} {
		var n int64
		if err := p.pool.QueryRow(ctx, stmt.sql, cutoff).Scan(&n); err != nil {
			return total, fmt.Errorf("count expired %s: %w", stmt.name, err)
		}
		total += n
	}
	return total, nil
}

// PruneBefore deletes event rows stamped before cutoff and returns the total
// number of rows removed.
func (p *Pruner) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"time_and_sale", pruneTimeAndSaleSQL},
		{"quote_events", pruneQuotesSQL},
		{"option_trades", pruneTradesSQL},
	} {
		tag, err := p.pool.Exec(ctx, stmt.sql, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", stmt.name, err)
		}
		if n := tag.RowsAffected(); n > 0 {
			p.logger.Info().Str("table", stmt.name).Int64("rows", n).Msg("pruned expired rows")
			total += n
		}
	}
	return total, nil
}
