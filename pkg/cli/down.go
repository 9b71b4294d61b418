package cli

import (
	"time"

	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
)

func newDownCommand(opts *rootOptions) *cobra.Command {
	var removeVolumes bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the project's containers and network",
		RunE: func(cmd *cobra.Command, args []string) error {
			downOpts := deployment.DownOptions{RemoveVolumes: removeVolumes}
			if cmd.Flags().Changed("timeout") {
				downOpts.Timeout = &timeout
			}
			return opts.withManager(cmd, func(m *deployment.Manager, _ *config.Project) error {
				return m.Down(cmd.Context(), downOpts)
			})
		},
	}

	cmd.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "also remove the project's named volumes")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "shutdown grace period per container")

	return cmd
}
