// Package cli assembles the labdock command tree.
package cli

import (
	"github.com/spf13/cobra"

	"labdock/pkg/config"
	"labdock/pkg/deployment"
	"labdock/pkg/docker"
	"labdock/pkg/logger"
)

// rootOptions carries the flags every subcommand shares.
type rootOptions struct {
	file        string
	projectName string
	logLevel    string
}

func (o *rootOptions) loadProject() (*config.Project, error) {
	return config.Load(config.Options{
		File:        o.file,
		ProjectName: o.projectName,
	})
}

// withManager loads the project, connects to the engine and hands both
// to fn. The engine connection closes when fn returns. Commands that
// never touch the engine load the project directly so they work without
// a running daemon.
func (o *rootOptions) withManager(cmd *cobra.Command, fn func(*deployment.Manager, *config.Project) error) error {
	project, err := o.loadProject()
	if err != nil {
		return err
	}

	client, err := docker.NewClient(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(deployment.NewManager(project, client), project)
}

// NewRootCommand builds the labdock root command with all subcommands
// attached.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "labdock",
		Short: "Run a lab's notebook server and shell containers",
		Long: `labdock reads a small compose style descriptor and drives the local
container engine: it builds the lab image once, starts the Jupyter
notebook service next to an interactive shell service and mounts the
repository into both at the same path.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log := logger.GetLogger()
			log.ConfigureFromEnv()
			if opts.logLevel != "" {
				log.SetLogLevel(opts.logLevel)
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "descriptor file (default: discover labdock.yml in the working directory)")
	root.PersistentFlags().StringVarP(&opts.projectName, "project-name", "p", "", "project name (default: taken from the descriptor or its directory)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newUpCommand(opts),
		newDownCommand(opts),
		newRunCommand(opts),
		newPsCommand(opts),
		newLogsCommand(opts),
		newBuildCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)

	return root
}
