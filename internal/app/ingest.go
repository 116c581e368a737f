package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"flowstore/internal/storage"
)

// Ingest loads newline-delimited JSON records from a file into the dataset's
// repository. Rows whose natural key already exists are skipped, so re-running
// an ingest is harmless.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Ingest is a real write path, so it gets the same broadcast bus as the
	// service: subscribers see the submitted batch before the command exits.
	bus, closeSinks := a.startBus()
	defer closeSinks()
	defer bus.Stop()

	repos, err := a.buildRepos(pool, bus)
	if err != nil {
		return err
	}

	file, err := os.Open(opts.Path)
	if err != nil {
		return fmt.Errorf("open ingest file: %w", err)
	}
	defer file.Close()

	var submitted int
	var inserted int64

	switch opts.Dataset {
	case "prints":
		records, err := decodeStream[storage.TimeAndSale](file)
		if err != nil {
			return err
		}
		submitted = len(records)
		inserted, err = repos.TimeAndSale.BulkInsert(ctx, records)
		if err != nil {
			return err
		}
	case "quotes":
		records, err := decodeStream[storage.QuoteEvent](file)
		if err != nil {
			return err
		}
		submitted = len(records)
		inserted, err = repos.Quotes.BulkInsert(ctx, records)
		if err != nil {
			return err
		}
	case "trades":
		records, err := decodeStream[storage.OptionTrade](file)
		if err != nil {
			return err
		}
		submitted = len(records)
		inserted, err = repos.Trades.BulkInsert(ctx, records)
		if err != nil {
			return err
		}
	case "alerts":
		records, err := decodeStream[storage.PowerAlert](file)
		if err != nil {
			return err
		}
		submitted = len(records)
		inserted, err = repos.PowerAlerts.BulkInsert(ctx, records)
		if err != nil {
			return err
		}
	case "volume":
		records, err := decodeStream[storage.VolumeSnapshot](file)
		if err != nil {
			return err
		}
		submitted = len(records)
		inserted, err = repos.Volume.BulkInsert(ctx, records)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown dataset %q", opts.Dataset)
	}

	a.Logger.Info().
		Str("dataset", opts.Dataset).
		Int("submitted", submitted).
		Int64("inserted", inserted).
		Msg("ingest complete")
	return nil
}

// decodeStream reads concatenated or newline-delimited JSON records until EOF.
func decodeStream[R any](r io.Reader) ([]R, error) {
	dec := json.NewDecoder(r)
	var out []R
	for {
		var rec R
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
