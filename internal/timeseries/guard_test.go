package timeseries

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staticMax struct {
	max time.Time
	err error
}

func (s staticMax) MaxTimestamp(context.Context, time.Time) (time.Time, error) {
	return s.max, s.err
}

func TestSiblingCatchUpGuard(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := func() time.Time {
		return time.Date(2024, 1, 8, 16, 0, 0, 0, ny)
	}

	tests := []struct {
		name    string
		max     time.Time
		current bool
	}{
		{
			name:    "sibling past today's threshold is current",
			max:     time.Date(2024, 1, 8, 10, 15, 0, 0, ny),
			current: true,
		},
		{
			name:    "sibling before today's threshold is stale",
			max:     time.Date(2024, 1, 8, 9, 0, 0, 0, ny),
			current: false,
		},
		{
			name:    "sibling from yesterday is stale",
			max:     time.Date(2024, 1, 7, 15, 0, 0, 0, ny),
			current: false,
		},
		{
			name:    "no sibling data at all is stale",
			current: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := SiblingCatchUpGuard(staticMax{max: tt.max}, 9, 30, ny, now)
			current, err := guard(context.Background())
			if err != nil {
				t.Fatalf("guard returned error: %v", err)
			}
			if current != tt.current {
				t.Errorf("guard = %v, want %v", current, tt.current)
			}
		})
	}
}

func TestSiblingCatchUpGuardPropagatesError(t *testing.T) {
	boom := errors.New("aggregate failed")
	guard := SiblingCatchUpGuard(staticMax{err: boom}, 9, 30, time.UTC, nil)
	if _, err := guard(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
}
