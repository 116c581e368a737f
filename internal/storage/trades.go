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
	tradeColumns = `id,
        trade_id,
        symbol,
        occurred_at,
        expiry,
        strike,
        option_type,
        side,
        price,
        size,
        exchange,
        volume,
        bid_price,
        ask_price,
        notional,
        open_interest,
        sentiment,
        unusual,
        highly_unusual`

	selectTradesSQL = `SELECT ` + tradeColumns + `
    FROM option_trades
    WHERE occurred_at BETWEEN $1 AND $2`

	getTradeSQL = `SELECT ` + tradeColumns + `
    FROM option_trades
    WHERE occurred_at = $1 AND trade_id = $2;`

	insertTradeSQL = `INSERT INTO option_trades (
        trade_id,
        symbol,
        occurred_at,
        expiry,
        strike,
        option_type,
        side,
        price,
        size,
        exchange,
        volume,
        bid_price,
        ask_price,
        notional,
        open_interest,
        sentiment,
        unusual,
        highly_unusual
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
    )
    ON CONFLICT (occurred_at, trade_id) DO NOTHING;`

	maxTradeSQL = `SELECT max(occurred_at) FROM option_trades WHERE occurred_at >= $1;`

	putCallSummarySQL = `SELECT
        COALESCE(sum(size) FILTER (WHERE option_type = 'P' AND side > 0), 0) AS puts,
        COALESCE(sum(size) FILTER (WHERE option_type = 'C' AND side > 0), 0) AS calls
    FROM option_trades
    WHERE occurred_at BETWEEN $1 AND $2`
)

// TradeStore is the pgx adapter for option trades.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore wires a pool into the store.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Select implements timeseries.Source.
func (s *TradeStore) Select(ctx context.Context, w timeseries.Window) ([]OptionTrade, error) {
	sql := selectTradesSQL
	args := []any{w.From, w.To}
	sql, args = appendSymbolClause(sql, "symbol", w.Symbols, args)
	sql = appendLimitClause(sql, "occurred_at", w.Limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select option trades: %w", err)
	}
	return collectRows(rows, scanOptionTrade)
}

// MaxTimestamp implements timeseries.Source.
func (s *TradeStore) MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error) {
	var max *time.Time
	if err := s.pool.QueryRow(ctx, maxTradeSQL, since).Scan(&max); err != nil {
		return time.Time{}, fmt.Errorf("max trade timestamp: %w", err)
	}
	if max == nil {
		return time.Time{}, nil
	}
	return *max, nil
}

// InsertBatch implements timeseries.Source.
func (s *TradeStore) InsertBatch(ctx context.Context, records []OptionTrade) (int64, error) {
	batch := &pgx.Batch{}
	for _, t := range records {
		batch.Queue(insertTradeSQL, tradeInsertArgs(t)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert trade batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// InsertIfAbsent writes one trade unless its natural key already exists, and
// reports whether a row was created.
func (s *TradeStore) InsertIfAbsent(ctx context.Context, t OptionTrade) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertTradeSQL, tradeInsertArgs(t)...)
	if err != nil {
		return false, fmt.Errorf("insert trade: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches one trade by its natural key.
func (s *TradeStore) Get(ctx context.Context, occurredAt time.Time, tradeID int64) (OptionTrade, error) {
	rows, err := s.pool.Query(ctx, getTradeSQL, occurredAt, tradeID)
	if err != nil {
		return OptionTrade{}, fmt.Errorf("get trade: %w", err)
	}
	trades, err := collectRows(rows, scanOptionTrade)
	if err != nil {
		return OptionTrade{}, err
	}
	if len(trades) == 0 {
		return OptionTrade{}, timeseries.ErrNotFound
	}
	return trades[0], nil
}

// PutCallSummary sums traded put and call size over the window.
func (s *TradeStore) PutCallSummary(ctx context.Context, w timeseries.Window) (PutCallSummary, error) {
	w = w.Normalize()

	sql := putCallSummarySQL
	args := []any{w.From, w.To}
	sql, args = appendSymbolClause(sql, "symbol", w.Symbols, args)

	var summary PutCallSummary
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&summary.Puts, &summary.Calls); err != nil {
		return PutCallSummary{}, fmt.Errorf("put/call summary: %w", err)
	}
	return summary, nil
}

func tradeInsertArgs(t OptionTrade) []any {
	return []any{
		t.TradeID,
		t.Symbol,
		t.OccurredAt,
		t.Expiry,
		t.Strike,
		t.OptionType,
		t.Side,
		t.Price,
		t.Size,
		t.Exchange,
		t.Volume,
		t.BidPrice,
		t.AskPrice,
		t.Notional,
		t.OpenInterest,
		t.Sentiment,
		t.Unusual,
		t.HighlyUnusual,
	}
}

func scanOptionTrade(rows pgx.Rows) (OptionTrade, error) {
	var t OptionTrade
	if err := rows.Scan(
		&t.ID,
		&t.TradeID,
		&t.Symbol,
		&t.OccurredAt,
		&t.Expiry,
		&t.Strike,
		&t.OptionType,
		&t.Side,
		&t.Price,
		&t.Size,
		&t.Exchange,
		&t.Volume,
		&t.BidPrice,
		&t.AskPrice,
		&t.Notional,
		&t.OpenInterest,
		&t.Sentiment,
		&t.Unusual,
		&t.HighlyUnusual,
	); err != nil {
		return OptionTrade{}, err
	}
	return t, nil
}

// TradeRepo serves option trade history and single-trade ingestion.
type TradeRepo struct {
	*timeseries.Repository[OptionTrade]

	store  *TradeStore
	pub    timeseries.Publisher
	policy timeseries.RollbackPolicy
	logger zerolog.Logger
}

// NewTradeRepo builds the repository over the store.
func NewTradeRepo(store *TradeStore, pub timeseries.Publisher, policy timeseries.RollbackPolicy, logger zerolog.Logger) *TradeRepo {
	return &TradeRepo{
		Repository: timeseries.NewRepository[OptionTrade](store, pub, logger),
		store:      store,
		pub:        pub,
		policy:     policy,
		logger:     logger.With().Str("component", "trade_repo").Logger(),
	}
}

// List returns trades inside the window, rolling back when requested.
func (r *TradeRepo) List(ctx context.Context, w timeseries.Window, rollback bool) ([]OptionTrade, error) {
	var policy *timeseries.RollbackPolicy
	if rollback {
		p := r.policy
		policy = &p
	}
	return r.Query(ctx, w, policy)
}

// Save writes one trade unless its natural key already exists. When a row was
// created, the stored projection is re-read on the broadcast worker and
// published; the write path never waits for that.
func (r *TradeRepo) Save(ctx context.Context, t OptionTrade) (bool, error) {
	created, err := r.store.InsertIfAbsent(ctx, t)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	if r.pub != nil {
		occurredAt, tradeID := t.OccurredAt, t.TradeID
		r.pub.PublishFunc(func() (any, bool) {
			stored, err := r.store.Get(context.Background(), occurredAt, tradeID)
			if err != nil {
				r.logger.Error().Err(err).
					Int64("trade_id", tradeID).
					Msg("refetch stored trade for broadcast")
				return nil, false
			}
			return stored, true
		})
	}
	return true, nil
}

// PutCallSummary sums traded put and call size over the window.
func (r *TradeRepo) PutCallSummary(ctx context.Context, w timeseries.Window) (PutCallSummary, error) {
	return r.store.PutCallSummary(ctx, w)
}

// Get fetches one trade by its natural key.
func (r *TradeRepo) Get(ctx context.Context, occurredAt time.Time, tradeID int64) (OptionTrade, error) {
	return r.store.Get(ctx, occurredAt, tradeID)
}
