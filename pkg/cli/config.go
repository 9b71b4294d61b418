package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	var services bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved descriptor",
		Long: `Loads the descriptor, interpolates every variable from the process
environment and the .env file, applies defaults and prints the result.
The command never talks to the engine, so it also works as a syntax
check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := opts.loadProject()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if services {
				for _, name := range project.ServiceNames() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			raw, err := yaml.Marshal(project)
			if err != nil {
				return err
			}
			_, err = out.Write(raw)
			return err
		},
	}

	cmd.Flags().BoolVar(&services, "services", false, "only print the service names")
	return cmd
}
