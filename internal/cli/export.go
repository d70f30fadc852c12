package cli

import (
	"github.com/spf13/cobra"

	"bidstack/internal/app"
)

var (
	exportFlags     queryFlags
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export aggregated bids as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := exportFlags.build()
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			QueryOptions: app.QueryOptions{Query: q, Backend: exportFlags.backend},
			PNGPath:      exportPNGPath,
			CSVPath:      exportCSVPath,
			MaxPoints:    exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum intervals to export (defaults to config)")
}
