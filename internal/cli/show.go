package cli

import (
	"github.com/spf13/cobra"

	"bidstack/internal/app"
)

var (
	showFlags queryFlags
	showView  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display aggregated bids, dispatch or prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := showFlags.build()
		if err != nil {
			return err
		}

		opts := app.ShowOptions{
			QueryOptions: app.QueryOptions{Query: q, Backend: showFlags.backend},
			View:         showView,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showFlags.register(showCmd)
	showCmd.Flags().StringVar(&showView, "view", app.ViewBids, "bids, dispatch or prices")
}
