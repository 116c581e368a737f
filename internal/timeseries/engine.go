package timeseries

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Source is the storage collaborator behind an Engine. Implementations map
// rows to records and enforce natural-key uniqueness on insert.
type Source[R any] interface {
	// Select returns records whose designated timestamp falls inside the
	// window, honouring the symbol filter, ordered by timestamp descending
	// and truncated when the window carries a positive limit.
	Select(ctx context.Context, w Window) ([]R, error)

	// MaxTimestamp returns the most recent record timestamp at or after
	// since, across all symbols. The zero time means no record exists.
	MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error)

	// InsertBatch writes records in one batch, silently skipping rows whose
	// natural key already exists, and reports how many were newly inserted.
	InsertBatch(ctx context.Context, records []R) (int64, error)
}

// Engine executes time-windowed queries with rollback expansion. The rollback
// search widens an empty result backward to the most recent calendar day that
// holds any data, regardless of symbol filter.
type Engine[R any] struct {
	src    Source[R]
	logger zerolog.Logger
}

// NewEngine constructs a query engine over the given source.
func NewEngine[R any](src Source[R], logger zerolog.Logger) *Engine[R] {
	return &Engine[R]{
		src:    src,
		logger: logger.With().Str("component", "timeseries_engine").Logger(),
	}
}

// Query runs the bounded query for w and, when the result is empty and a
// policy is supplied, performs a single rollback expansion. It returns
// ErrNoDataInRange when rollback finds nothing inside the lookback horizon.
func (e *Engine[R]) Query(ctx context.Context, w Window, policy *RollbackPolicy) ([]R, error) {
	w = w.Normalize()

	records, err := e.src.Select(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("bounded query: %w", err)
	}
	if len(records) > 0 || policy == nil {
		return records, nil
	}

	p := policy.withDefaults()

	if p.Guard != nil {
		current, guardErr := p.Guard(ctx)
		if guardErr != nil {
			return nil, fmt.Errorf("catch-up guard: %w", guardErr)
		}
		if current {
			e.logger.Debug().
				Time("from", w.From).
				Time("to", w.To).
				Msg("sibling dataset current; skipping rollback")
			return records, nil
		}
	}

	since := w.From.Add(-p.Lookback)
	max, err := e.src.MaxTimestamp(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("rollback aggregate: %w", err)
	}
	if max.IsZero() {
		return nil, ErrNoDataInRange
	}

	from, to := dayWindow(max, p.Location)
	e.logger.Debug().
		Time("max_ts", max).
		Time("rollback_from", from).
		Time("rollback_to", to).
		Msg("rolling back to most recent day with data")

	rolled, err := e.src.Select(ctx, Window{From: from, To: to, Symbols: w.Symbols, Limit: w.Limit})
	if err != nil {
		return nil, fmt.Errorf("rollback query: %w", err)
	}
	return rolled, nil
}
