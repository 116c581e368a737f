package storage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flowstore/internal/timeseries"
)

type fakeVolumeWriter struct {
	rows   map[string]VolumeSnapshot
	nextID int64
}

func newFakeVolumeWriter() *fakeVolumeWriter {
	return &fakeVolumeWriter{rows: make(map[string]VolumeSnapshot)}
}

func volumeKey(symbol string, date time.Time) string {
	return symbol + "|" + date.UTC().Format("2006-01-02")
}

func (f *fakeVolumeWriter) Get(_ context.Context, symbol string, date time.Time) (VolumeSnapshot, error) {
	v, ok := f.rows[volumeKey(symbol, date)]
	if !ok {
		return VolumeSnapshot{}, timeseries.ErrNotFound
	}
	return v, nil
}

func (f *fakeVolumeWriter) Upsert(_ context.Context, v VolumeSnapshot) error {
	key := volumeKey(v.Symbol, v.Date)
	if prior, ok := f.rows[key]; ok {
		v.ID = prior.ID
	} else {
		f.nextID++
		v.ID = f.nextID
	}
	f.rows[key] = v
	return nil
}

type supplierPublisher struct {
	published []any
}

func (p *supplierPublisher) Publish(records ...any) {
	p.published = append(p.published, records...)
}

func (p *supplierPublisher) PublishFunc(supplier func() (any, bool)) {
	if r, ok := supplier(); ok {
		p.published = append(p.published, r)
	}
}

func newVolumeRepoForTest(writer volumeWriter, pub timeseries.Publisher) *VolumeRepo {
	return &VolumeRepo{
		writer: writer,
		pub:    pub,
		logger: zerolog.Nop(),
	}
}

func TestVolumeSetBroadcastsStoredProjection(t *testing.T) {
	writer := newFakeVolumeWriter()
	pub := &supplierPublisher{}
	repo := newVolumeRepoForTest(writer, pub)

	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if err := repo.Set(context.Background(), VolumeSnapshot{
		Symbol:       "AAPL",
		Date:         day,
		OptionVolume: 1000,
		Puts:         400,
		Calls:        600,
	}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published %d records, want 1", len(pub.published))
	}
	got, ok := pub.published[0].(VolumeSnapshot)
	if !ok {
		t.Fatalf("published %T, want VolumeSnapshot", pub.published[0])
	}
	if got.ID == 0 {
		t.Error("broadcast record lacks its row ID; submitted value published instead of the stored row")
	}
	if got.OptionVolume != 1000 || got.Puts != 400 || got.Calls != 600 {
		t.Errorf("broadcast record does not match the stored row: %+v", got)
	}
}

func TestVolumeSetSkipsBroadcastWhenUnchanged(t *testing.T) {
	writer := newFakeVolumeWriter()
	pub := &supplierPublisher{}
	repo := newVolumeRepoForTest(writer, pub)

	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	snap := VolumeSnapshot{Symbol: "MSFT", Date: day, OptionVolume: 500, Puts: 200, Calls: 300}

	if err := repo.Set(context.Background(), snap); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := repo.Set(context.Background(), snap); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d records, want 1 (re-delivery of similar values stays quiet)", len(pub.published))
	}

	changed := snap
	changed.OptionVolume = 900
	if err := repo.Set(context.Background(), changed); err != nil {
		t.Fatalf("third Set: %v", err)
	}
	if len(pub.published) != 2 {
		t.Fatalf("published %d records, want 2 after a material change", len(pub.published))
	}
	got := pub.published[1].(VolumeSnapshot)
	if got.OptionVolume != 900 {
		t.Errorf("broadcast carries option volume %d, want 900", got.OptionVolume)
	}
}

func TestVolumeSetWithoutPublisher(t *testing.T) {
	writer := newFakeVolumeWriter()
	repo := newVolumeRepoForTest(writer, nil)

	day := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if err := repo.Set(context.Background(), VolumeSnapshot{Symbol: "TSLA", Date: day}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Errorf("stored %d rows, want 1", len(writer.rows))
	}
}
