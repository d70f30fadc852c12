package cli

import (
	"github.com/spf13/cobra"
)

var techTypesBackend string

var techTypesCmd = &cobra.Command{
	Use:   "tech-types",
	Short: "List resolved unit types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TechTypes(cmd.Context(), techTypesBackend)
	},
}

func init() {
	techTypesCmd.Flags().StringVar(&techTypesBackend, "backend", "", "Backend to query (defaults to config)")
}
