package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flowstore/internal/symbols"
)

func TestAppendSymbolClause(t *testing.T) {
	base := "SELECT * FROM t WHERE ts BETWEEN $1 AND $2"
	baseArgs := []any{1, 2}

	t.Run("empty filter leaves sql untouched", func(t *testing.T) {
		sql, args := appendSymbolClause(base, "symbol", symbols.Filter{}, baseArgs)
		if sql != base {
			t.Fatalf("sql changed: %q", sql)
		}
		if len(args) != 2 {
			t.Fatalf("args changed: %v", args)
		}
	})

	t.Run("single symbol uses equality", func(t *testing.T) {
		sql, args := appendSymbolClause(base, "symbol", symbols.Expand("AAPL"), baseArgs)
		want := base + " AND symbol = $3"
		if sql != want {
			t.Fatalf("got %q, want %q", sql, want)
		}
		if args[2] != "AAPL" {
			t.Fatalf("unexpected args: %v", args)
		}
	})

	t.Run("multiple symbols use membership", func(t *testing.T) {
		sql, args := appendSymbolClause(base, "symbol", symbols.Expand("AAPL,MSFT"), baseArgs)
		want := base + " AND symbol = ANY($3)"
		if sql != want {
			t.Fatalf("got %q, want %q", sql, want)
		}
		values, ok := args[2].([]string)
		if !ok || len(values) != 2 {
			t.Fatalf("unexpected args: %v", args)
		}
	})
}

func TestAppendLimitClause(t *testing.T) {
	base := "SELECT * FROM t WHERE ts BETWEEN $1 AND $2"

	if got := appendLimitClause(base, "ts", 0); got != base {
		t.Fatalf("zero limit changed sql: %q", got)
	}
	want := base + " ORDER BY ts DESC LIMIT 25"
	if got := appendLimitClause(base, "ts", 25); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestVolumeSnapshotSimilarTo(t *testing.T) {
	base := VolumeSnapshot{
		Symbol:       "TSLA",
		Date:         time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		OptionVolume: 120000,
		Puts:         40000,
		Calls:        80000,
		OpenInterest: 500000,
		Spot:         decimal.NewFromFloat(180.25),
		Close:        decimal.NewFromFloat(179.80),
		Volume:       98_000_000,
	}

	same := base
	same.ID = 99
	same.PctADV = 2.5 // immaterial field
	if !base.SimilarTo(same) {
		t.Fatal("snapshots differing only in immaterial fields should be similar")
	}

	changed := base
	changed.OptionVolume = 125000
	if base.SimilarTo(changed) {
		t.Fatal("changed option volume should not be similar")
	}

	otherDay := base
	otherDay.Date = base.Date.AddDate(0, 0, 1)
	if base.SimilarTo(otherDay) {
		t.Fatal("different day should not be similar")
	}
}
