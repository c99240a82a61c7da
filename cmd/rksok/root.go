package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var timeoutFlag time.Duration

	opts := &clientOptions{server: &serverFlag, timeout: &timeoutFlag}

	rootCmd := &cobra.Command{
		Use:           "rksok",
		Short:         "Client for RKSOK phonebook servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "127.0.0.1:8888", "server address (host:port)")
	rootCmd.PersistentFlags().DurationVarP(&timeoutFlag, "timeout", "t", 5*time.Second, "deadline for the whole exchange")

	rootCmd.AddCommand(newGetCommand(opts))
	rootCmd.AddCommand(newWriteCommand(opts))
	rootCmd.AddCommand(newDeleteCommand(opts))
	rootCmd.AddCommand(newCheckCommand(opts))

	return rootCmd
}
