package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flowstore/internal/app"
)

var (
	pruneMaxAge string
	pruneDryRun bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove event rows older than the retention horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PruneOptions{DryRun: pruneDryRun}

		if pruneMaxAge != "" {
			maxAge, err := time.ParseDuration(pruneMaxAge)
			if err != nil {
				return fmt.Errorf("invalid --max-age value: %w", err)
			}
			opts.MaxAge = maxAge
		}

		return getApp().Prune(cmd.Context(), opts)
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneMaxAge, "max-age", "", "Retention horizon, e.g. 720h (defaults to config)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Report what would be removed without deleting")
}
