package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bidstack/internal/app"
)

var (
	ingestFrom   string
	ingestTo     string
	ingestDryRun bool
	ingestChunk  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Normalise cached raw extracts and write them to Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseTime("from", ingestFrom)
		if err != nil {
			return err
		}
		to, err := parseTime("to", ingestTo)
		if err != nil {
			return err
		}
		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.IngestOptions{
			From:   from,
			To:     to,
			DryRun: ingestDryRun,
			Chunk:  ingestChunk,
		}

		return getApp().Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFrom, "from", "", "First interval (RFC3339, inclusive)")
	ingestCmd.Flags().StringVar(&ingestTo, "to", "", "Last interval (RFC3339, inclusive)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Prepare records without writing to storage")
	ingestCmd.Flags().StringVar(&ingestChunk, "chunk", "", "Chunk size: month or day (defaults to config)")
}
