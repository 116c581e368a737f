package timeseries

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Publisher is the asynchronous change broadcaster notified after ingestion.
// Both calls must return without waiting for delivery.
type Publisher interface {
	Publish(records ...any)
	PublishFunc(supplier func() (any, bool))
}

// Ingestor performs idempotent batch writes and notifies subscribers.
type Ingestor[R any] struct {
	src    Source[R]
	pub    Publisher
	logger zerolog.Logger
}

// NewIngestor constructs an ingestor over the given source. pub may be nil,
// in which case ingestion is silent.
func NewIngestor[R any](src Source[R], pub Publisher, logger zerolog.Logger) *Ingestor[R] {
	return &Ingestor[R]{
		src:    src,
		pub:    pub,
		logger: logger.With().Str("component", "timeseries_ingest").Logger(),
	}
}

// BulkInsert writes records in one batch, skipping rows whose natural key is
// already present, and returns the newly inserted count. An empty input is a
// no-op: no storage call, no broadcast. On success the submitted list is
// broadcast as-is, duplicates included; subscribers that need exact deltas
// must diff on their side.
func (g *Ingestor[R]) BulkInsert(ctx context.Context, records []R) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	inserted, err := g.src.InsertBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}

	g.logger.Debug().
		Int("submitted", len(records)).
		Int64("inserted", inserted).
		Msg("batch written")

	if g.pub != nil {
		payload := make([]any, len(records))
		for i, r := range records {
			payload[i] = r
		}
		g.pub.Publish(payload...)
	}

	return inserted, nil
}
