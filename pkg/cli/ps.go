package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
)

func newPsCommand(opts *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List the project's containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withManager(cmd, func(m *deployment.Manager, _ *config.Project) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if quiet {
					for _, s := range statuses {
						fmt.Fprintln(out, s.ID)
					}
					return nil
				}

				w := tabwriter.NewWriter(out, 2, 8, 2, ' ', 0)
				fmt.Fprintln(w, "SERVICE\tCONTAINER\tSTATE\tHEALTH\tPORTS")
				for _, s := range statuses {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						s.Service, s.Container, colorState(s.State), s.Health, s.Ports)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print container IDs")
	return cmd
}

func colorState(state string) string {
	switch state {
	case "running":
		return color.GreenString(state)
	case "exited", "dead":
		return color.RedString(state)
	case "restarting", "paused":
		return color.YellowString(state)
	}
	return state
}
