package cli

import (
	"github.com/spf13/cobra"

	"bidstack/internal/app"
	"bidstack/internal/config"
)

var (
	verifyFlags queryFlags
	verifyLeft  string
	verifyRight string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "对比两个后端的聚合结果，不一致时告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := verifyFlags.build()
		if err != nil {
			return err
		}

		return getApp().Verify(cmd.Context(), app.VerifyOptions{Query: q, Left: verifyLeft, Right: verifyRight})
	},
}

func init() {
	verifyFlags.register(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyLeft, "left", config.BackendPostgres, "第一个后端")
	verifyCmd.Flags().StringVar(&verifyRight, "right", config.BackendMemory, "第二个后端")
}
