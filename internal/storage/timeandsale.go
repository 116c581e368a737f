package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"flowstore/internal/timeseries"
)

const (
	selectTimeAndSaleSQL = `SELECT
        id,
        symbol,
        trade_index,
        created_on,
        received_on,
        size,
        price,
        bid_price,
        ask_price,
        exchange_code,
        aggressor_side,
        spread_leg,
        extended_hours,
        valid_tick
    FROM time_and_sale
    WHERE created_on BETWEEN $1 AND $2`

	insertTimeAndSaleSQL = `INSERT INTO time_and_sale (
        symbol,
        trade_index,
        created_on,
        received_on,
        size,
        price,
        bid_price,
        ask_price,
        exchange_code,
        aggressor_side,
        spread_leg,
        extended_hours,
        valid_tick
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (symbol, created_on, trade_index) DO NOTHING;`

	maxTimeAndSaleSQL = `SELECT max(created_on) FROM time_and_sale WHERE created_on >= $1;`
)

// TimeAndSaleStore is the pgx adapter for time-and-sale prints.
type TimeAndSaleStore struct {
	pool *pgxpool.Pool
}

// NewTimeAndSaleStore wires a pool into the store.
func NewTimeAndSaleStore(pool *pgxpool.Pool) *TimeAndSaleStore {
	return &TimeAndSaleStore{pool: pool}
}

// Select implements timeseries.Source.
func (s *TimeAndSaleStore) Select(ctx context.Context, w timeseries.Window) ([]TimeAndSale, error) {
	sql := selectTimeAndSaleSQL
	args := []any{w.From, w.To}
	sql, args = appendSymbolClause(sql, "symbol", w.Symbols, args)
	sql = appendLimitClause(sql, "created_on", w.Limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select time and sale: %w", err)
	}
	return collectRows(rows, scanTimeAndSale)
}

// MaxTimestamp implements timeseries.Source. The zero time means no print
// exists at or after since.
func (s *TimeAndSaleStore) MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error) {
	var max *time.Time
	if err := s.pool.QueryRow(ctx, maxTimeAndSaleSQL, since).Scan(&max); err != nil {
		return time.Time{}, fmt.Errorf("max time and sale timestamp: %w", err)
	}
	if max == nil {
		return time.Time{}, nil
	}
	return *max, nil
}

// InsertBatch implements timeseries.Source. Rows whose natural key already
// exists are skipped by the database, not reported as errors.
func (s *TimeAndSaleStore) InsertBatch(ctx context.Context, records []TimeAndSale) (int64, error) {
	batch := &pgx.Batch{}
	for _, t := range records {
		batch.Queue(insertTimeAndSaleSQL,
			t.Symbol,
			t.TradeIndex,
			t.CreatedOn,
			t.ReceivedOn,
			t.Size,
			t.Price,
			t.BidPrice,
			t.AskPrice,
			t.ExchangeCode,
			t.AggressorSide,
			t.SpreadLeg,
			t.ExtendedHours,
			t.ValidTick,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert time and sale batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func scanTimeAndSale(rows pgx.Rows) (TimeAndSale, error) {
	var t TimeAndSale
	if err := rows.Scan(
		&t.ID,
		&t.Symbol,
		&t.TradeIndex,
		&t.CreatedOn,
		&t.ReceivedOn,
		&t.Size,
		&t.Price,
		&t.BidPrice,
		&t.AskPrice,
		&t.ExchangeCode,
		&t.AggressorSide,
		&t.SpreadLeg,
		&t.ExtendedHours,
		&t.ValidTick,
	); err != nil {
		return TimeAndSale{}, err
	}
	return t, nil
}

// TimeAndSaleRepo is the repository callers use: windowed queries with
// rollback expansion plus idempotent bulk ingestion with broadcast.
type TimeAndSaleRepo struct {
	*timeseries.Repository[TimeAndSale]

	store  *TimeAndSaleStore
	policy timeseries.RollbackPolicy
}

// NewTimeAndSaleRepo builds the repository over the store.
func NewTimeAndSaleRepo(store *TimeAndSaleStore, pub timeseries.Publisher, policy timeseries.RollbackPolicy, logger zerolog.Logger) *TimeAndSaleRepo {
	return &TimeAndSaleRepo{
		Repository: timeseries.NewRepository[TimeAndSale](store, pub, logger),
		store:      store,
		policy:     policy,
	}
}

// List returns prints inside the window, widening backward when rollback is
// requested and the window is empty.
func (r *TimeAndSaleRepo) List(ctx context.Context, w timeseries.Window, rollback bool) ([]TimeAndSale, error) {
	var policy *timeseries.RollbackPolicy
	if rollback {
		p := r.policy
		policy = &p
	}
	return r.Query(ctx, w, policy)
}

// Store exposes the underlying source, mainly as a catch-up sibling for the
// quote repository.
func (r *TimeAndSaleRepo) Store() *TimeAndSaleStore {
	return r.store
}
