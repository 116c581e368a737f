package timeseries

import (
	"context"
	"time"
)

// MaxTimestamper is the slice of Source a catch-up guard needs.
type MaxTimestamper interface {
	MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error)
}

// SiblingCatchUpGuard builds a guard that reports "current" when a related
// dataset's most recent timestamp has already passed today's threshold
// time-of-day in loc. Used to avoid rolling back when today's data simply has
// not arrived yet. The threshold hour and minute come from configuration, not
// from this package.
func SiblingCatchUpGuard(sibling MaxTimestamper, hour, minute int, loc *time.Location, now func() time.Time) CatchUpGuard {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) (bool, error) {
		max, err := sibling.MaxTimestamp(ctx, now().Add(-DefaultLookback))
		if err != nil {
			return false, err
		}
		if max.IsZero() {
			return false, nil
		}
		local := now().In(loc)
		threshold := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		return !max.In(loc).Before(threshold), nil
	}
}
