package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flowstore/internal/app"
	"flowstore/internal/symbols"
)

var (
	showDataset     string
	showSymbols     string
	showFrom        string
	showTo          string
	showLimit       int
	showMinStrength int
	showNoRollback  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent records from a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}

		opts := app.ShowOptions{
			Dataset:     showDataset,
			Symbols:     symbols.Expand(showSymbols),
			Limit:       showLimit,
			MinStrength: showMinStrength,
			Rollback:    !showNoRollback,
		}

		if showFrom != "" {
			from, err := time.Parse(time.RFC3339, showFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if showTo != "" {
			to, err := time.Parse(time.RFC3339, showTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showDataset, "dataset", "prints", "Dataset to display: prints, quotes, trades, alerts, volume, signatures")
	showCmd.Flags().StringVar(&showSymbols, "symbols", "", "Comma-delimited symbol filter")
	showCmd.Flags().StringVar(&showFrom, "from", "", "Window start (RFC3339; defaults to today)")
	showCmd.Flags().StringVar(&showTo, "to", "", "Window end (RFC3339; defaults to now)")
	showCmd.Flags().IntVar(&showLimit, "limit", 50, "Maximum rows to display (0 for all)")
	showCmd.Flags().IntVar(&showMinStrength, "min-strength", 0, "Minimum alert strength (alerts dataset only)")
	showCmd.Flags().BoolVar(&showNoRollback, "no-rollback", false, "Do not widen an empty window into history")
}
