package cli

import (
	"time"

	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
)

func newUpCommand(opts *rootOptions) *cobra.Command {
	var upOpts deployment.UpOptions

	cmd := &cobra.Command{
		Use:   "up [SERVICE...]",
		Short: "Build images and start the project's services",
		Long: `Starts every service of the project, or only the named ones plus
their dependencies. Containers whose configuration is unchanged are
left running, everything else is recreated. The command returns once
the containers are started; use "labdock logs -f" to watch them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			upOpts.Services = args
			return opts.withManager(cmd, func(m *deployment.Manager, _ *config.Project) error {
				return m.Up(cmd.Context(), upOpts)
			})
		},
	}

	cmd.Flags().BoolVar(&upOpts.Build, "build", false, "rebuild images before starting")
	cmd.Flags().BoolVar(&upOpts.NoBuild, "no-build", false, "never build images, use what is present")
	cmd.Flags().BoolVar(&upOpts.ForceRecreate, "force-recreate", false, "recreate containers even when their configuration is unchanged")
	cmd.Flags().BoolVar(&upOpts.RemoveOrphans, "remove-orphans", false, "remove containers of services no longer in the descriptor")
	cmd.Flags().BoolVar(&upOpts.Wait, "wait", false, "wait until the started services are healthy")
	cmd.Flags().DurationVar(&upOpts.WaitTimeout, "wait-timeout", 2*time.Minute, "how long --wait waits per service")
	cmd.MarkFlagsMutuallyExclusive("build", "no-build")

	return cmd
}
