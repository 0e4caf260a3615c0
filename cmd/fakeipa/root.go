package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fakeipa",
		Short: "Fake ironic-python-agent for virtual bare metal",
		Long: `fakeipa pretends to be ironic-python-agent for every system a BMC
emulator powers on from virtual media. It looks nodes up in Ironic, keeps
them heartbeating and answers the agent command API.

Commands:
  serve    Run the agent API and heartbeat loop
  version  Print the reported agent version
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}
