package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
)

// ExitCodeError carries the exit code of a one-off command so main can
// terminate the process with it.
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var runOpts deployment.RunOptions

	cmd := &cobra.Command{
		Use:   "run SERVICE [COMMAND...]",
		Short: "Run a one-off command in a fresh service container",
		Long: `Starts a new container for a service, attaches the terminal to it and
returns the command's exit code. The container publishes no host ports
unless --service-ports is given and is removed after the command exits
unless --keep is.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runOpts.Service = args[0]
			if len(args) > 1 {
				runOpts.Command = args[1:]
			}
			return opts.withManager(cmd, func(m *deployment.Manager, _ *config.Project) error {
				code, err := m.Run(cmd.Context(), runOpts)
				if err != nil {
					return err
				}
				if code != 0 {
					return ExitCodeError{Code: code}
				}
				return nil
			})
		},
	}

	// Everything after the service name belongs to the command, not to
	// this flag set.
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().StringArrayVarP(&runOpts.Env, "env", "e", nil, "set an environment variable, KEY=VALUE")
	cmd.Flags().BoolVar(&runOpts.NoDeps, "no-deps", false, "do not start the service's dependencies")
	cmd.Flags().BoolVar(&runOpts.ServicePorts, "service-ports", false, "publish the service's ports on the one-off container")
	cmd.Flags().BoolVar(&runOpts.Keep, "keep", false, "keep the container after the command exits")
	cmd.Flags().BoolVarP(&runOpts.NoTTY, "no-TTY", "T", false, "disable terminal allocation")

	return cmd
}
