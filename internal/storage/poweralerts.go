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
	powerAlertColumns = `id,
        symbol,
        alert_date,
        created_on,
        updated_on,
        contract_expiry,
        contract_strike,
        contract_type,
        broken,
        strength,
        strength_increase,
        first_spot,
        first_volume,
        volume_delta,
        num_calls,
        num_unusual,
        num_highly_unusual,
        num_dark_pool`

	powerAlertInsertColumns = `symbol,
        alert_date,
        created_on,
        updated_on,
        contract_expiry,
        contract_strike,
        contract_type,
        broken,
        strength,
        strength_increase,
        first_spot,
        first_volume,
        volume_delta,
        num_calls,
        num_unusual,
        num_highly_unusual,
        num_dark_pool`

	selectPowerAlertsSQL = `SELECT ` + powerAlertColumns + `
    FROM power_alerts
    WHERE alert_date BETWEEN $1 AND $2`

	insertPowerAlertSQL = `INSERT INTO power_alerts (` + powerAlertInsertColumns + `)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    ON CONFLICT (symbol, alert_date) DO NOTHING;`

	insertPowerAlertReturningSQL = `INSERT INTO power_alerts (` + powerAlertInsertColumns + `)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
    RETURNING id;`

	updatePowerAlertSQL = `UPDATE power_alerts SET
        symbol = $2,
        alert_date = $3,
        updated_on = $4,
        contract_expiry = $5,
        contract_strike = $6,
        contract_type = $7,
        broken = $8,
        strength = $9,
        strength_increase = $10,
        first_spot = $11,
        first_volume = $12,
        volume_delta = $13,
        num_calls = $14,
        num_unusual = $15,
        num_highly_unusual = $16,
        num_dark_pool = $17
    WHERE id = $1;`

	maxPowerAlertSQL = `SELECT max(alert_date) FROM power_alerts WHERE alert_date >= $1;`

	findPowerAlertSQL = `SELECT ` + powerAlertColumns + `
    FROM power_alerts
    WHERE symbol = $1 AND alert_date >= $2 AND alert_date < $3
    ORDER BY alert_date DESC
    LIMIT 1;`
)

// PowerAlertStore is the pgx adapter for power alerts. Unlike the immutable
// feeds, alerts are updated in place as their day develops.
type PowerAlertStore struct {
	pool        *pgxpool.Pool
	minStrength int
}

// NewPowerAlertStore wires a pool into the store.
func NewPowerAlertStore(pool *pgxpool.Pool) *PowerAlertStore {
	return &PowerAlertStore{pool: pool}
}

// WithMinStrength returns a view of the store whose Select and MaxTimestamp
// only see alerts at or above min. The view shares the pool; writes go
// through the original store.
func (s *PowerAlertStore) WithMinStrength(min int) *PowerAlertStore {
	return &PowerAlertStore{pool: s.pool, minStrength: min}
}

// Select implements timeseries.Source.
func (s *PowerAlertStore) Select(ctx context.Context, w timeseries.Window) ([]PowerAlert, error) {
	sql := selectPowerAlertsSQL
	args := []any{w.From, w.To}
	sql, args = appendSymbolClause(sql, "symbol", w.Symbols, args)
	sql, args = s.appendStrengthClause(sql, args)
	sql = appendLimitClause(sql, "alert_date", w.Limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select power alerts: %w", err)
	}
	return collectRows(rows, scanPowerAlert)
}

// MaxTimestamp implements timeseries.Source.
func (s *PowerAlertStore) MaxTimestamp(ctx context.Context, since time.Time) (time.Time, error) {
	sql := maxPowerAlertSQL
	args := []any{since}
	if s.minStrength > 0 {
		sql = `SELECT max(alert_date) FROM power_alerts WHERE alert_date >= $1 AND strength >= $2;`
		args = append(args, s.minStrength)
	}

	var max *time.Time
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&max); err != nil {
		return time.Time{}, fmt.Errorf("max power alert timestamp: %w", err)
	}
	if max == nil {
		return time.Time{}, nil
	}
	return *max, nil
}

// InsertBatch implements timeseries.Source. Alerts whose (symbol, alert_date)
// already exists are skipped; use BulkUpdate to revise them.
func (s *PowerAlertStore) InsertBatch(ctx context.Context, records []PowerAlert) (int64, error) {
	batch := &pgx.Batch{}
	for _, p := range records {
		batch.Queue(insertPowerAlertSQL, powerAlertInsertArgs(p)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert power alert batch: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Insert writes a new alert and fills in its assigned ID.
func (s *PowerAlertStore) Insert(ctx context.Context, p *PowerAlert) error {
	if err := s.pool.QueryRow(ctx, insertPowerAlertReturningSQL, powerAlertInsertArgs(*p)...).Scan(&p.ID); err != nil {
		return fmt.Errorf("insert power alert: %w", err)
	}
	return nil
}

// Update rewrites an existing alert by ID.
func (s *PowerAlertStore) Update(ctx context.Context, p PowerAlert) error {
	tag, err := s.pool.Exec(ctx, updatePowerAlertSQL, powerAlertUpdateArgs(p)...)
	if err != nil {
		return fmt.Errorf("update power alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update power alert %d: %w", p.ID, timeseries.ErrNotFound)
	}
	return nil
}

// BulkUpdate rewrites many alerts by ID in one round trip.
func (s *PowerAlertStore) BulkUpdate(ctx context.Context, records []PowerAlert) error {
	batch := &pgx.Batch{}
	for _, p := range records {
		batch.Queue(updatePowerAlertSQL, powerAlertUpdateArgs(p)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("bulk update power alerts: %w", err)
		}
	}
	return nil
}

// FindBySymbolAndDate returns the alert for symbol on the calendar day
// containing day in loc.
func (s *PowerAlertStore) FindBySymbolAndDate(ctx context.Context, symbol string, day time.Time, loc *time.Location) (PowerAlert, error) {
	if loc == nil {
		loc = time.Local
	}
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, findPowerAlertSQL, symbol, start, end)
	if err != nil {
		return PowerAlert{}, fmt.Errorf("find power alert: %w", err)
	}
	alerts, err := collectRows(rows, scanPowerAlert)
	if err != nil {
		return PowerAlert{}, err
	}
	if len(alerts) == 0 {
		return PowerAlert{}, timeseries.ErrNotFound
	}
	return alerts[0], nil
}

func (s *PowerAlertStore) appendStrengthClause(sql string, args []any) (string, []any) {
	if s.minStrength <= 0 {
		return sql, args
	}
	args = append(args, s.minStrength)
	return fmt.Sprintf("%s AND strength >= $%d", sql, len(args)), args
}

func powerAlertInsertArgs(p PowerAlert) []any {
	return []any{
		p.Symbol,
		p.AlertDate,
		p.CreatedOn,
		p.UpdatedOn,
		p.ContractExpiry,
		p.ContractStrike,
		p.ContractType,
		p.Broken,
		p.Strength,
		p.StrengthIncrease,
		p.FirstSpot,
		p.FirstVolume,
		p.VolumeDelta,
		p.NumCalls,
		p.NumUnusual,
		p.NumHighlyUnusual,
		p.NumDarkPool,
	}
}

func powerAlertUpdateArgs(p PowerAlert) []any {
	return []any{
		p.ID,
		p.Symbol,
		p.AlertDate,
		p.UpdatedOn,
		p.ContractExpiry,
		p.ContractStrike,
		p.ContractType,
		p.Broken,
		p.Strength,
		p.StrengthIncrease,
		p.FirstSpot,
		p.FirstVolume,
		p.VolumeDelta,
		p.NumCalls,
		p.NumUnusual,
		p.NumHighlyUnusual,
		p.NumDarkPool,
	}
}

func scanPowerAlert(rows pgx.Rows) (PowerAlert, error) {
	var p PowerAlert
	if err := rows.Scan(
		&p.ID,
		&p.Symbol,
		&p.AlertDate,
		&p.CreatedOn,
		&p.UpdatedOn,
		&p.ContractExpiry,
		&p.ContractStrike,
		&p.ContractType,
		&p.Broken,
		&p.Strength,
		&p.StrengthIncrease,
		&p.FirstSpot,
		&p.FirstVolume,
		&p.VolumeDelta,
		&p.NumCalls,
		&p.NumUnusual,
		&p.NumHighlyUnusual,
		&p.NumDarkPool,
	); err != nil {
		return PowerAlert{}, err
	}
	return p, nil
}

// PowerAlertRepo serves alert history and mutation. Whether saves broadcast
// is a deployment choice; alert feeds that fan out to terminals enable it,
// batch backfills leave it off.
type PowerAlertRepo struct {
	*timeseries.Repository[PowerAlert]

	store           *PowerAlertStore
	pub             timeseries.Publisher
	policy          timeseries.RollbackPolicy
	logger          zerolog.Logger
	broadcastOnSave bool
}

// NewPowerAlertRepo builds the repository over the store.
func NewPowerAlertRepo(store *PowerAlertStore, pub timeseries.Publisher, policy timeseries.RollbackPolicy, broadcastOnSave bool, logger zerolog.Logger) *PowerAlertRepo {
	return &PowerAlertRepo{
		Repository:      timeseries.NewRepository[PowerAlert](store, pub, logger),
		store:           store,
		pub:             pub,
		policy:          policy,
		logger:          logger.With().Str("component", "power_alert_repo").Logger(),
		broadcastOnSave: broadcastOnSave,
	}
}

// List returns alerts at or above minStrength inside the window, rolling back
// when requested. The strength floor applies to the rollback probe too, so an
// empty result widens to the most recent day that had a qualifying alert.
func (r *PowerAlertRepo) List(ctx context.Context, w timeseries.Window, minStrength int, rollback bool) ([]PowerAlert, error) {
	source := r.store
	if minStrength > 0 {
		source = r.store.WithMinStrength(minStrength)
	}
	engine := timeseries.NewEngine[PowerAlert](source, r.logger)

	var policy *timeseries.RollbackPolicy
	if rollback {
		p := r.policy
		policy = &p
	}
	return engine.Query(ctx, w, policy)
}

// FindBySymbolAndDate returns the alert for symbol on the given calendar day.
func (r *PowerAlertRepo) FindBySymbolAndDate(ctx context.Context, symbol string, day time.Time) (PowerAlert, error) {
	return r.store.FindBySymbolAndDate(ctx, symbol, day, r.policy.Location)
}

// Save inserts the alert when its ID is zero and updates it otherwise. The
// stored state is broadcast when the repository is configured to do so.
func (r *PowerAlertRepo) Save(ctx context.Context, p *PowerAlert) error {
	if p.ID == 0 {
		if err := r.store.Insert(ctx, p); err != nil {
			return err
		}
	} else {
		if err := r.store.Update(ctx, *p); err != nil {
			return err
		}
	}

	if r.broadcastOnSave && r.pub != nil {
		r.pub.Publish(*p)
	}
	return nil
}

// BulkUpdate rewrites many alerts by ID without broadcasting.
func (r *PowerAlertRepo) BulkUpdate(ctx context.Context, records []PowerAlert) error {
	if len(records) == 0 {
		return nil
	}
	return r.store.BulkUpdate(ctx, records)
}
