package timeseries

import "github.com/rs/zerolog"

// Repository bundles the windowed query engine and the batch ingestor for a
// single record type. Entity stores embed it and add their own lookups.
type Repository[R any] struct {
	*Engine[R]
	*Ingestor[R]
}

// NewRepository wires an engine and ingestor over one source.
func NewRepository[R any](src Source[R], pub Publisher, logger zerolog.Logger) *Repository[R] {
	return &Repository[R]{
		Engine:   NewEngine(src, logger),
		Ingestor: NewIngestor(src, pub, logger),
	}
}
