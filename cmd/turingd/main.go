package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "turingd",
		Short: "Collaborative document editing server",
		Long: `turingd serves documents split into sections that registered users edit
one section at a time. Owners invite collaborators, and every document with
an open edit gets a multicast chat group.

Configuration is read from turing.yaml (or --config) and TURING_* environment
variables, e.g. TURING_SERVER_LISTEN=:2000.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./turing.yaml or /etc/turing/turing.yaml)")

	rootCmd.AddCommand(
		newServeCmd(&configFile),
		newAddUserCmd(&configFile),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "turingd %s\n", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
