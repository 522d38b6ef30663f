package cli

import (
	"github.com/spf13/cobra"

	"github.com/longmans/prompt-agent/internal/app"
)

func newUsageCmd(a *cliApp) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Describe the request format and the configured model types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ap, err := a.load(cmd.Context(), app.Options{NoAudit: true, NoHistory: true})
			if err != nil {
				return err
			}
			defer a.closeApp(ap)
			return writeMarkdown(a.stdout, ap.Service.Help(), plain)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal rendering")
	return cmd
}
