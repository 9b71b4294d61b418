package cli

import (
	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
)

func newBuildCommand(opts *rootOptions) *cobra.Command {
	var buildOpts deployment.BuildOptions

	cmd := &cobra.Command{
		Use:   "build [SERVICE...]",
		Short: "Build the project's images",
		RunE: func(cmd *cobra.Command, args []string) error {
			buildOpts.Services = args
			return opts.withManager(cmd, func(m *deployment.Manager, _ *config.Project) error {
				return m.Build(cmd.Context(), buildOpts)
			})
		},
	}

	cmd.Flags().BoolVar(&buildOpts.NoCache, "no-cache", false, "build without the engine's layer cache")
	cmd.Flags().BoolVar(&buildOpts.Pull, "pull", false, "always pull newer base images")

	return cmd
}
