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
	volumeColumns = `id,
        symbol,
        date,
        option_volume,
        puts,
        calls,
        pct_adv,
        adv,
        open_interest,
        spot,
        spot_chg,
        atm_ivol,
        atm_ivol_chg,
        volume,
        avg_volume,
        close,
        net_delta,
        net_vega,
        comments`

	volumeInsertColumns = `symbol,
        date,
        option_volume,
        puts,
        calls,
        pct_adv,
        adv,
        open_interest,
        spot,
        spot_chg,
        atm_ivol,
        atm_ivol_chg,
        volume,
        avg_volume,
        close,
        net_delta,
        net_vega,
        comments`

	selectVolumeSQL = `SELECT ` + volumeColumns + `
    FROM volume
    WHERE date BETWEEN $1 AND $2`

	insertVolumeSQL = `INSERT INTO volume (` + volumeInsertColumns + `)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
    ON CONFLICT (symbol, date) DO NOTHING;`

	upsertVolumeSQL = `INSERT INTO volume (` + volumeInsertColumns + `)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
    ON CONFLICT (symbol, date) DO UPDATE SET
        option_volume = EXCLUDED.option_volume,
        puts = EXCLUDED.puts,
        calls = EXCLUDED.calls,
        pct_adv = EXCLUDED.pct_adv,
        adv = EXCLUDED.adv,
        open_interest = EXCLUDED.open_interest,
        spot = EXCLUDED.spot,
        spot_chg = EXCLUDED.spot_chg,
        atm_ivol = EXCLUDED.atm_ivol,
        atm_ivol_chg = EXCLUDED.atm_ivol_chg,
        volume = EXCLUDED.volume,
        avg_volume = EXCLUDED.avg_volume,
        close = EXCLUDED.close,
        net_delta = EXCLUDED.net_delta,
        net_vega = EXCLUDED.net_vega,
        comments = EXCLUDED.comments;`

	maxVolumeSQL = `SELECT max(date) FROM volume WHERE date >= $1;`

	getVolumeSQL = `SELECT ` + volumeColumns + `
    FROM volume
    WHERE symbol = $1 AND date = $2;`

	volumeDaySQL = `SELECT ` + volumeColumns + `
    FROM volume
    WHERE date = $1`
)

// VolumeStore is the pgx adapter for daily option-volume snapshots, keyed by
// (symbol, date).
type VolumeStore struct {
	pool *pgxpool.Pool
}

// NewVolumeStore wires a pool into the store.
func NewVolumeStore(pool *pgxpool.Pool) *VolumeStore {
	return &VolumeStore{pool: pool}
}

// Select implements timeseries.Source.
func (s *VolumeStore) Select(ctx context.Context, w timeseries.Window) ([]VolumeSnapshot, error) {
	sql := selectVolumeSQL
	args := []any{w.From, w.To}
	sql, args = appendSymbolClause(sql, "symbol", w.Symbols, args)
	sql = appendLimitClause(sql, "date", w.Limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select volume snapshots: %w", err)
	}
	return collectRows(rows, scanVolumeSnapshot)
}

// MaxTimestamp implements timeseries.Source.
func (s *VolumeStore) MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error) {
	var max *time.Time
	if err := s.pool.QueryRow(ctx, maxVolumeSQL, since).Scan(&max); err != nil {
		return time.Time{}, fmt.Errorf("max volume date: %w", err)
	}
	if max == nil {
		return time.Time{}, nil
	}
	return *max, nil
}

// InsertBatch implements timeseries.Source. Existing (symbol, date) rows are
// left untouched; Upsert is the revision path.
func (s *VolumeStore) InsertBatch(ctx context.Context, records []VolumeSnapshot) (int64, error) {
	batch := &pgx.Batch{}
	for _, v := range records {
		batch.Queue(insertVolumeSQL, volumeInsertArgs(v)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert volume batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Get fetches the snapshot for one symbol and day.
func (s *VolumeStore) Get(ctx context.Context, symbol string, date time.Time) (VolumeSnapshot, error) {
	rows, err := s.pool.Query(ctx, getVolumeSQL, symbol, date)
	if err != nil {
		return VolumeSnapshot{}, fmt.Errorf("get volume snapshot: %w", err)
	}
	snaps, err := collectRows(rows, scanVolumeSnapshot)
	if err != nil {
		return VolumeSnapshot{}, err
	}
	if len(snaps) == 0 {
		return VolumeSnapshot{}, timeseries.ErrNotFound
	}
	return snaps[0], nil
}

// Day returns every snapshot stamped exactly date, optionally filtered.
func (s *VolumeStore) Day(ctx context.Context, date time.Time, filter symbols.Filter) ([]VolumeSnapshot, error) {
	sql := volumeDaySQL
	args := []any{date}
	sql, args = appendSymbolClause(sql, "symbol", filter, args)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("volume snapshots for day: %w", err)
	}
	return collectRows(rows, scanVolumeSnapshot)
}

// Upsert writes the snapshot, replacing the row for its (symbol, date).
func (s *VolumeStore) Upsert(ctx context.Context, v VolumeSnapshot) error {
	if _, err := s.pool.Exec(ctx, upsertVolumeSQL, volumeInsertArgs(v)...); err != nil {
		return fmt.Errorf("upsert volume snapshot: %w", err)
	}
	return nil
}

func volumeInsertArgs(v VolumeSnapshot) []any {
	return []any{
		v.Symbol,
		v.Date,
		v.OptionVolume,
		v.Puts,
		v.Calls,
		v.PctADV,
		v.ADV,
		v.OpenInterest,
		v.Spot,
		v.SpotChg,
		v.AtmIvol,
		v.AtmIvolChg,
		v.Volume,
		v.AvgVolume,
		v.Close,
		v.NetDelta,
		v.NetVega,
		v.Comments,
	}
}

func scanVolumeSnapshot(rows pgx.Rows) (VolumeSnapshot, error) {
	var v VolumeSnapshot
	if err := rows.Scan(
		&v.ID,
		&v.Symbol,
		&v.Date,
		&v.OptionVolume,
		&v.Puts,
		&v.Calls,
		&v.PctADV,
		&v.ADV,
		&v.OpenInterest,
		&v.Spot,
		&v.SpotChg,
		&v.AtmIvol,
		&v.AtmIvolChg,
		&v.Volume,
		&v.AvgVolume,
		&v.Close,
		&v.NetDelta,
		&v.NetVega,
		&v.Comments,
	); err != nil {
		return VolumeSnapshot{}, err
	}
	return v, nil
}

// VolumeRepo serves daily volume snapshots. Set is an upsert that only
// broadcasts when the stored values materially changed, so feeds that
// re-deliver the same aggregate every few minutes stay quiet downstream.
type VolumeRepo struct {
	*timeseries.Repository[VolumeSnapshot]

	store  *VolumeStore
	writer volumeWriter
	pub    timeseries.Publisher
	policy timeseries.RollbackPolicy
	logger zerolog.Logger
}

// volumeWriter is the slice of VolumeStore the Set path depends on.
type volumeWriter interface {
	Get(ctx context.Context, symbol string, date time.Time) (VolumeSnapshot, error)
	Upsert(ctx context.Context, v VolumeSnapshot) error
}

// NewVolumeRepo builds the repository over the store.
func NewVolumeRepo(store *VolumeStore, pub timeseries.Publisher, policy timeseries.RollbackPolicy, logger zerolog.Logger) *VolumeRepo {
	return &VolumeRepo{
		Repository: timeseries.NewRepository[VolumeSnapshot](store, pub, logger),
		store:      store,
		writer:     store,
		pub:        pub,
		policy:     policy,
		logger:     logger.With().Str("component", "volume_repo").Logger(),
	}
}

// Get returns the snapshots for one calendar day, optionally filtered.
func (r *VolumeRepo) Get(ctx context.Context, date time.Time, filter symbols.Filter) ([]VolumeSnapshot, error) {
	return r.store.Day(ctx, date, filter)
}

// GetOne fetches the snapshot for one symbol and day.
func (r *VolumeRepo) GetOne(ctx context.Context, symbol string, date time.Time) (VolumeSnapshot, error) {
	return r.store.Get(ctx, symbol, date)
}

// GetRange returns snapshots inside the window, rolling back when requested.
func (r *VolumeRepo) GetRange(ctx context.Context, w timeseries.Window, rollback bool) ([]VolumeSnapshot, error) {
	var policy *timeseries.RollbackPolicy
	if rollback {
		p := r.policy
		policy = &p
	}
	return r.Query(ctx, w, policy)
}

// Set upserts the snapshot and broadcasts it unless a prior row for the same
// (symbol, date) already carried the same material values. Subscribers get the
// stored projection re-read at delivery time, not the submitted value, so the
// record carries its row ID and any later revision of the same day.
func (r *VolumeRepo) Set(ctx context.Context, v VolumeSnapshot) error {
	prior, err := r.writer.Get(ctx, v.Symbol, v.Date)
	switch {
	case errors.Is(err, timeseries.ErrNotFound):
		// first snapshot of the day; always broadcast
	case err != nil:
		return err
	}

	if err := r.writer.Upsert(ctx, v); err != nil {
		return err
	}

	if r.pub != nil && (prior.ID == 0 || !v.SimilarTo(prior)) {
		symbol, date := v.Symbol, v.Date
		r.pub.PublishFunc(func() (any, bool) {
			stored, err := r.writer.Get(context.Background(), symbol, date)
			if err != nil {
				r.logger.Error().Err(err).
					Str("symbol", symbol).
					Time("date", date).
					Msg("could not load volume snapshot for broadcast")
				return nil, false
			}
			return stored, true
		})
	}
	return nil
}
