package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"flowstore/internal/storage"
)

// PruneOptions configure a manual retention sweep.
type PruneOptions struct {
	MaxAge time.Duration
	DryRun bool
}

// Prune removes event rows older than the retention horizon once, outside the
// scheduled sweep.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = a.Config.Retention.MaxAge
	}
	if maxAge <= 0 {
		return errors.New("retention.max_age is not configured; pass --max-age")
	}

	pool, err := a.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	pruner := storage.NewPruner(pool, a.Logger)
	cutoff := time.Now().UTC().Add(-maxAge)

	if opts.DryRun {
		n, err := pruner.CountBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "would remove %d rows older than %s\n", n, cutoff.Format(time.RFC3339))
		return nil
	}

	n, err := pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("prune complete")
	return nil
}
