package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowstore/internal/symbols"
	"flowstore/internal/timeseries"
)

const (
	selectSignaturePrintsSQL = `SELECT symbol, occurrence, print_date
    FROM signature_print`

	findSignaturePrintSQL = `SELECT symbol, occurrence, print_date
    FROM signature_print
    WHERE symbol = $1 AND print_date = $2
    LIMIT 1;`

	saveSignaturePrintSQL = `INSERT INTO signature_print (symbol, occurrence, print_date)
    VALUES ($1, $2, $3)
    ON CONFLICT (symbol) DO UPDATE SET
        occurrence = EXCLUDED.occurrence,
        print_date = EXCLUDED.print_date;`
)

// SignaturePrintStore is the pgx adapter for signature-print counters, one row
// per symbol.
type SignaturePrintStore struct {
	pool *pgxpool.Pool
}

// NewSignaturePrintStore wires a pool into the store.
func NewSignaturePrintStore(pool *pgxpool.Pool) *SignaturePrintStore {
	return &SignaturePrintStore{pool: pool}
}

// List returns every tracked signature print, optionally filtered by symbol.
func (s *SignaturePrintStore) List(ctx context.Context, filter symbols.Filter) ([]SignaturePrint, error) {
	sql, args := signaturePrintListQuery(filter)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select signature prints: %w", err)
	}
	return collectRows(rows, scanSignaturePrint)
}

// FindBySymbolAndDate fetches the signature print for a symbol stamped exactly
// date. Returns timeseries.ErrNotFound when no such row exists.
func (s *SignaturePrintStore) FindBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (SignaturePrint, error) {
	rows, err := s.pool.Query(ctx, findSignaturePrintSQL, symbol, date)
	if err != nil {
		return SignaturePrint{}, fmt.Errorf("find signature print: %w", err)
	}
	prints, err := collectRows(rows, scanSignaturePrint)
	if err != nil {
		return SignaturePrint{}, err
	}
	if len(prints) == 0 {
		return SignaturePrint{}, timeseries.ErrNotFound
	}
	return prints[0], nil
}

// Save writes the counter for the print's symbol, replacing any prior value.
func (s *SignaturePrintStore) Save(ctx context.Context, p SignaturePrint) error {
	if _, err := s.pool.Exec(ctx, saveSignaturePrintSQL, p.Symbol, p.Occurrence, p.PrintDate); err != nil {
		return fmt.Errorf("save signature print: %w", err)
	}
	return nil
}

func signaturePrintListQuery(filter symbols.Filter) (string, []any) {
	sql := selectSignaturePrintsSQL
	var args []any
	if single, ok := filter.Single(); ok {
		sql += ` WHERE symbol = $1`
		args = append(args, single)
	} else if !filter.IsEmpty() {
		sql += ` WHERE symbol = ANY($1)`
		args = append(args, filter.Values())
	}
	return sql + `;`, args
}

func scanSignaturePrint(rows pgx.Rows) (SignaturePrint, error) {
	var p SignaturePrint
	if err := rows.Scan(&p.Symbol, &p.Occurrence, &p.PrintDate); err != nil {
		return SignaturePrint{}, err
	}
	return p, nil
}
