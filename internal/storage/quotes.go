package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"flowstore/internal/symbols"
	"flowstore/internal/timeseries"
)

const (
	quoteColumns = `id,
        symbol,
        event_type,
        created_on,
        bid_size,
        bid_price,
        mid_price,
        ask_price,
        ask_size,
        last_price,
        last_size,
        halted,
        after_hours,
        odd_lot,
        hash`

	selectQuotesSQL = `SELECT ` + quoteColumns + `
    FROM quote_events
    WHERE created_on BETWEEN $1 AND $2`

	insertQuoteSQL = `INSERT INTO quote_events (
        symbol,
        event_type,
        created_on,
        bid_size,
        bid_price,
        mid_price,
        ask_price,
        ask_size,
        last_price,
        last_size,
        halted,
        after_hours,
        odd_lot,
        hash
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (symbol, created_on, hash) DO NOTHING;`

	maxQuoteSQL = `SELECT max(created_on) FROM quote_events WHERE created_on >= $1;`

	mostRecentQuotesSQL = `SELECT DISTINCT ON (symbol) ` + quoteColumns + `
    FROM quote_events
    WHERE symbol = ANY($1)
    ORDER BY symbol, created_on DESC;`

	latestQuoteSQL = `SELECT ` + quoteColumns + `,
        COALESCE((
            SELECT b.last_price
            FROM quote_events b
            WHERE b.symbol = $1
              AND b.event_type = $2
              AND b.created_on >= $3
              AND b.created_on < $4
            ORDER BY b.created_on DESC
            LIMIT 1
        ), 0) AS prev_close
    FROM quote_events
    WHERE symbol = $1
      AND event_type = $2
    ORDER BY created_on DESC
    LIMIT 1;`
)

// QuoteStore is the pgx adapter for quote feed events.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore wires a pool into the store.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// Select implements timeseries.Source.
func (s *QuoteStore) Select(ctx context.Context, w timeseries.Window) ([]QuoteEvent, error) {
	sql := selectQuotesSQL
	args := []any{w.From, w.To}
	sql, args = appendSymbolClause(sql, "symbol", w.Symbols, args)
	sql = appendLimitClause(sql, "created_on", w.Limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select quote events: %w", err)
	}
	return collectRows(rows, scanQuoteEvent)
}

// MaxTimestamp implements timeseries.Source.
func (s *QuoteStore) MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error) {
	var max *time.Time
	if err := s.pool.QueryRow(ctx, maxQuoteSQL, since).Scan(&max); err != nil {
		return time.Time{}, fmt.Errorf("max quote timestamp: %w", err)
	}
	if max == nil {
		return time.Time{}, nil
	}
	return *max, nil
}

// InsertBatch implements timeseries.Source.
func (s *QuoteStore) InsertBatch(ctx context.Context, records []QuoteEvent) (int64, error) {
	batch := &pgx.Batch{}
	for _, q := range records {
		batch.Queue(insertQuoteSQL,
			q.Symbol,
			q.EventType,
			q.CreatedOn,
			q.BidSize,
			q.BidPrice,
			q.MidPrice,
			q.AskPrice,
			q.AskSize,
			q.LastPrice,
			q.LastSize,
			q.Halted,
			q.AfterHours,
			q.OddLot,
			q.Hash,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert quote batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// MostRecent returns the latest event per requested symbol. Symbols with no
// data are simply absent from the result.
func (s *QuoteStore) MostRecent(ctx context.Context, filter symbols.Filter) ([]QuoteEvent, error) {
	if filter.IsEmpty() {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, mostRecentQuotesSQL, filter.Values())
	if err != nil {
		return nil, fmt.Errorf("most recent quotes: %w", err)
	}
	return collectRows(rows, scanQuoteEvent)
}

// Latest resolves the snapshot for one symbol: its most recent last-trade
// event plus the closing trade price from the prior calendar day in loc.
func (s *QuoteStore) Latest(ctx context.Context, symbol string, loc *time.Location) (Snapshot, error) {
	if loc == nil {
		loc = time.Local
	}
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	prevStart := dayStart.Add(-24 * time.Hour)

	row := s.pool.QueryRow(ctx, latestQuoteSQL, symbol, QuoteEventLastTrade, prevStart, dayStart)

	var snap Snapshot
	q := &snap.Quote
	if err := row.Scan(
		&q.ID,
		&q.Symbol,
		&q.EventType,
		&q.CreatedOn,
		&q.BidSize,
		&q.BidPrice,
		&q.MidPrice,
		&q.AskPrice,
		&q.AskSize,
		&q.LastPrice,
		&q.LastSize,
		&q.Halted,
		&q.AfterHours,
		&q.OddLot,
		&q.Hash,
		&snap.PrevClose,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, timeseries.ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("latest quote: %w", err)
	}
	return snap, nil
}

func scanQuoteEvent(rows pgx.Rows) (QuoteEvent, error) {
	var q QuoteEvent
	if err := rows.Scan(
		&q.ID,
		&q.Symbol,
		&q.EventType,
		&q.CreatedOn,
		&q.BidSize,
		&q.BidPrice,
		&q.MidPrice,
		&q.AskPrice,
		&q.AskSize,
		&q.LastPrice,
		&q.LastSize,
		&q.Halted,
		&q.AfterHours,
		&q.OddLot,
		&q.Hash,
	); err != nil {
		return QuoteEvent{}, err
	}
	return q, nil
}

// QuoteRepo serves quote history and snapshots. Quote ingestion does not
// broadcast; downstream consumers follow the time-and-sale stream instead.
type QuoteRepo struct {
	*timeseries.Repository[QuoteEvent]

	store  *QuoteStore
	policy timeseries.RollbackPolicy
}

// NewQuoteRepo builds the repository. The policy's Guard should be the
// time-and-sale catch-up guard so an empty "today" window is not mistaken for
// missing history while the sibling feed is already current.
func NewQuoteRepo(store *QuoteStore, policy timeseries.RollbackPolicy, logger zerolog.Logger) *QuoteRepo {
	return &QuoteRepo{
		Repository: timeseries.NewRepository[QuoteEvent](store, nil, logger),
		store:      store,
		policy:     policy,
	}
}

// List returns quote events inside the window, rolling back when requested.
func (r *QuoteRepo) List(ctx context.Context, w timeseries.Window, rollback bool) ([]QuoteEvent, error) {
	var policy *timeseries.RollbackPolicy
	if rollback {
		p := r.policy
		policy = &p
	}
	return r.Query(ctx, w, policy)
}

// MostRecent returns the latest event per symbol.
func (r *QuoteRepo) MostRecent(ctx context.Context, filter symbols.Filter) ([]QuoteEvent, error) {
	return r.store.MostRecent(ctx, filter)
}

// Latest resolves the snapshot for one symbol.
func (r *QuoteRepo) Latest(ctx context.Context, symbol string) (Snapshot, error) {
	return r.store.Latest(ctx, symbol, r.policy.Location)
}
