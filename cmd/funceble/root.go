package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitInterrupted is the exit code of a run stopped by a signal.
const exitInterrupted = 130

// NewRootCmd creates the root command for funceble.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funceble",
		Short: "Availability tester for domains, IPs and URLs",
		Long: `funceble checks the availability, syntax or reputation of domains,
IP addresses and URLs.

Lists are preloaded into a continue dataset, so an interrupted run resumes
where it stopped. Subjects found down or invalid are remembered and only
retested once the retest delay has passed.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .funceble.yaml in current directory or XDG config directory)")

	// Add subcommands
	cmd.AddCommand(NewTestCmd())
	cmd.AddCommand(NewCleanCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errInterrupted) {
			os.Exit(exitInterrupted)
		}
		os.Exit(1)
	}
}
