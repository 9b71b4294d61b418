package cli

import (
	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
)

func newLogsCommand(opts *rootOptions) *cobra.Command {
	var logOpts deployment.LogsOptions

	cmd := &cobra.Command{
		Use:   "logs [SERVICE...]",
		Short: "Show service logs, one colored prefix per service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logOpts.Services = args
			return opts.withManager(cmd, func(m *deployment.Manager, _ *config.Project) error {
				return m.Logs(cmd.Context(), logOpts)
			})
		},
	}

	cmd.Flags().BoolVar(&logOpts.Follow, "follow", false, "keep streaming new log lines")
	cmd.Flags().StringVar(&logOpts.Tail, "tail", "all", "number of lines to show from the end of each log")
	cmd.Flags().BoolVar(&logOpts.Timestamps, "timestamps", false, "prefix lines with engine timestamps")

	return cmd
}
