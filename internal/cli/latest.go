package cli

import (
	"github.com/spf13/cobra"
)

var latestSymbol string

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the current snapshot for one symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Latest(cmd.Context(), latestSymbol)
	},
}

func init() {
	latestCmd.Flags().StringVar(&latestSymbol, "symbol", "", "Symbol to inspect (comma-delimited list prints a table)")
}
