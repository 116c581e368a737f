package timeseries

import (
	"context"
	"time"

	"flowstore/internal/symbols"
)

// Window bounds a time-series query. From must not be after To.
type Window struct {
	From    time.Time
	To      time.Time
	Symbols symbols.Filter
	Limit   int
}

// Normalize applies the public window contract: a degenerate window where
// From equals To widens To by one day, yielding a de-facto 24h window.
func (w Window) Normalize() Window {
	if w.From.Equal(w.To) {
		w.To = w.From.Add(24 * time.Hour)
	}
	return w
}

// CatchUpGuard reports whether a sibling dataset is already current. When it
// returns true the engine skips rollback and returns the empty result, so an
// empty window for data that simply has not arrived yet is not mistaken for
// missing history.
type CatchUpGuard func(ctx context.Context) (bool, error)

// RollbackPolicy governs the backward search performed when a bounded query
// comes back empty.
type RollbackPolicy struct {
	// Lookback is how far behind the requested window start the search may
	// reach. Defaults to seven days.
	Lookback time.Duration

	// Location fixes the calendar used for day alignment. Defaults to UTC.
	Location *time.Location

	// Guard, when set, is consulted before rolling back.
	Guard CatchUpGuard
}

// DefaultLookback is the rollback horizon used when a policy does not set one.
const DefaultLookback = 7 * 24 * time.Hour

func (p RollbackPolicy) withDefaults() RollbackPolicy {
	if p.Lookback <= 0 {
		p.Lookback = DefaultLookback
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	return p
}

// dayWindow aligns t to its calendar day in loc and returns the covering
// 24h window.
func dayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour)
}
