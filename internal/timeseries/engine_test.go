package timeseries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flowstore/internal/symbols"
)

type fakeRecord struct {
	Symbol string
	TS     time.Time
}

type fakeSource struct {
	records []fakeRecord

	selectCalls []Window
	maxCalls    []time.Time
	insertCalls int

	selectErr error
	maxErr    error
}

func (f *fakeSource) Select(_ context.Context, w Window) ([]fakeRecord, error) {
	f.selectCalls = append(f.selectCalls, w)
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	var out []fakeRecord
	for _, r := range f.records {
		if r.TS.Before(w.From) || r.TS.After(w.To) {
			continue
		}
		if !w.Symbols.Contains(r.Symbol) {
			continue
		}
		out = append(out, r)
	}
	if w.Limit > 0 && len(out) > w.Limit {
		out = out[:w.Limit]
	}
	return out, nil
}

func (f *fakeSource) MaxTimestamp(_ context.Context, since time.Time) (time.Time, error) {
	f.maxCalls = append(f.maxCalls, since)
	if f.maxErr != nil {
		return time.Time{}, f.maxErr
	}
	var max time.Time
	for _, r := range f.records {
		if r.TS.Before(since) {
			continue
		}
		if r.TS.After(max) {
			max = r.TS
		}
	}
	return max, nil
}

func (f *fakeSource) InsertBatch(_ context.Context, records []fakeRecord) (int64, error) {
	f.insertCalls++
	var inserted int64
	for _, in := range records {
		dup := false
		for _, have := range f.records {
			if have.Symbol == in.Symbol && have.TS.Equal(in.TS) {
				dup = true
				break
			}
		}
		if !dup {
			f.records = append(f.records, in)
			inserted++
		}
	}
	return inserted, nil
}

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestQueryNormalizesDegenerateWindow(t *testing.T) {
	src := &fakeSource{records: []fakeRecord{
		{Symbol: "AAPL", TS: ts("2024-01-08T15:00:00Z")},
	}}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	day := ts("2024-01-08T00:00:00Z")
	got, err := engine.Query(context.Background(), Window{From: day, To: day}, nil)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record inside widened window, got %d", len(got))
	}

	effective := src.selectCalls[0]
	if !effective.To.Equal(day.Add(24 * time.Hour)) {
		t.Errorf("effective To = %v, want %v", effective.To, day.Add(24*time.Hour))
	}
}

func TestQueryNoRollbackWhenDataPresent(t *testing.T) {
	src := &fakeSource{records: []fakeRecord{
		{Symbol: "MSFT", TS: ts("2024-01-08T10:00:00Z")},
	}}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	_, err := engine.Query(context.Background(), Window{
		From: ts("2024-01-08T00:00:00Z"),
		To:   ts("2024-01-09T00:00:00Z"),
	}, &RollbackPolicy{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(src.maxCalls) != 0 {
		t.Error("rollback aggregate must not run when the bounded query has data")
	}
	if len(src.selectCalls) != 1 {
		t.Errorf("expected exactly 1 select, got %d", len(src.selectCalls))
	}
}

func TestQueryRollbackAlignsToCalendarDay(t *testing.T) {
	// Requested Jan 8, most recent prior data on Jan 3 at 15:22 within the
	// 7-day lookback. Rollback must query exactly [Jan 3 00:00, Jan 4 00:00).
	src := &fakeSource{records: []fakeRecord{
		{Symbol: "AAPL", TS: ts("2024-01-03T15:22:00Z")},
	}}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	day := ts("2024-01-08T00:00:00Z")
	got, err := engine.Query(context.Background(), Window{From: day, To: day}, &RollbackPolicy{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected rollback to return the Jan 3 record, got %d records", len(got))
	}

	if len(src.selectCalls) != 2 {
		t.Fatalf("expected bounded + rollback selects, got %d", len(src.selectCalls))
	}
	rb := src.selectCalls[1]
	if !rb.From.Equal(ts("2024-01-03T00:00:00Z")) || !rb.To.Equal(ts("2024-01-04T00:00:00Z")) {
		t.Errorf("rollback window = [%v, %v), want [2024-01-03, 2024-01-04)", rb.From, rb.To)
	}

	if len(src.maxCalls) != 1 {
		t.Fatalf("expected 1 aggregate call, got %d", len(src.maxCalls))
	}
	if !src.maxCalls[0].Equal(day.Add(-DefaultLookback)) {
		t.Errorf("aggregate since = %v, want %v", src.maxCalls[0], day.Add(-DefaultLookback))
	}
}

func TestQueryRollbackIgnoresSymbolFilterInAggregate(t *testing.T) {
	// Rollback searches for the most recent day with any data, not data for
	// the filtered symbol. The rolled-back select still applies the filter.
	src := &fakeSource{records: []fakeRecord{
		{Symbol: "TSLA", TS: ts("2024-01-05T12:00:00Z")},
	}}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	got, err := engine.Query(context.Background(), Window{
		From:    ts("2024-01-08T00:00:00Z"),
		To:      ts("2024-01-09T00:00:00Z"),
		Symbols: symbols.Expand("AAPL"),
	}, &RollbackPolicy{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("filtered rollback select should be empty, got %d records", len(got))
	}
	if len(src.maxCalls) != 1 {
		t.Error("aggregate should have run despite the symbol filter")
	}
}

func TestQueryNoDataInRange(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	_, err := engine.Query(context.Background(), Window{
		From: ts("2024-01-08T00:00:00Z"),
		To:   ts("2024-01-09T00:00:00Z"),
	}, &RollbackPolicy{})
	if !errors.Is(err, ErrNoDataInRange) {
		t.Fatalf("expected ErrNoDataInRange, got %v", err)
	}
}

func TestQueryRollbackRespectsLookbackHorizon(t *testing.T) {
	// Data exists, but older than the lookback window.
	src := &fakeSource{records: []fakeRecord{
		{Symbol: "AAPL", TS: ts("2023-12-20T10:00:00Z")},
	}}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	_, err := engine.Query(context.Background(), Window{
		From: ts("2024-01-08T00:00:00Z"),
		To:   ts("2024-01-09T00:00:00Z"),
	}, &RollbackPolicy{Lookback: 7 * 24 * time.Hour})
	if !errors.Is(err, ErrNoDataInRange) {
		t.Fatalf("expected ErrNoDataInRange beyond lookback, got %v", err)
	}
}

func TestQueryGuardSkipsRollback(t *testing.T) {
	src := &fakeSource{records: []fakeRecord{
		{Symbol: "AAPL", TS: ts("2024-01-03T15:22:00Z")},
	}}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	guardCalled := false
	policy := &RollbackPolicy{Guard: func(context.Context) (bool, error) {
		guardCalled = true
		return true, nil
	}}

	got, err := engine.Query(context.Background(), Window{
		From: ts("2024-01-08T00:00:00Z"),
		To:   ts("2024-01-09T00:00:00Z"),
	}, policy)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if !guardCalled {
		t.Fatal("guard was not consulted")
	}
	if len(got) != 0 {
		t.Errorf("expected empty result when sibling is current, got %d", len(got))
	}
	if len(src.maxCalls) != 0 {
		t.Error("rollback aggregate must not run when the guard reports current")
	}
}

func TestQueryGuardError(t *testing.T) {
	src := &fakeSource{}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	guardErr := errors.New("sibling probe failed")
	_, err := engine.Query(context.Background(), Window{
		From: ts("2024-01-08T00:00:00Z"),
		To:   ts("2024-01-09T00:00:00Z"),
	}, &RollbackPolicy{Guard: func(context.Context) (bool, error) { return false, guardErr }})
	if !errors.Is(err, guardErr) {
		t.Fatalf("expected guard error to propagate, got %v", err)
	}
}

func TestQueryPropagatesStorageError(t *testing.T) {
	boom := errors.New("connection reset")
	src := &fakeSource{selectErr: boom}
	engine := NewEngine[fakeRecord](src, zerolog.Nop())

	_, err := engine.Query(context.Background(), Window{
		From: ts("2024-01-08T00:00:00Z"),
		To:   ts("2024-01-09T00:00:00Z"),
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error to propagate, got %v", err)
	}
}

func TestDayWindowUsesPolicyLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2024-01-03T03:22:00Z is still Jan 2 in New York.
	from, to := dayWindow(ts("2024-01-03T03:22:00Z"), ny)
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, ny)
	if !from.Equal(want) {
		t.Errorf("day start = %v, want %v", from, want)
	}
	if !to.Equal(want.Add(24 * time.Hour)) {
		t.Errorf("day end = %v, want %v", to, want.Add(24*time.Hour))
	}
}
