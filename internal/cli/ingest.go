package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowstore/internal/app"
)

var (
	ingestDataset string
	ingestPath    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load newline-delimited JSON records into a dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestPath == "" {
			return fmt.Errorf("--file is required")
		}

		opts := app.IngestOptions{
			Dataset: ingestDataset,
			Path:    ingestPath,
		}
		return getApp().Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDataset, "dataset", "prints", "Dataset to load: prints, quotes, trades, alerts, volume")
	ingestCmd.Flags().StringVar(&ingestPath, "file", "", "Path to NDJSON input")
}
