package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/log"
	"github.com/funilrys/PyFunceble-sub002/internal/preload"
	"github.com/spf13/cobra"
)

// NewCleanCmd creates the clean command.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired WHOIS records and reset the progress of a file",
		Long: `Clean removes the expired records of the WHOIS cache.

With -f, it also forgets the progress of a file: its continue rows and its
preload description are deleted, so the next test reads it from the start.
The inactive dataset is kept.

Examples:
  # Drop expired WHOIS records
  funceble clean

  # Start hosts.txt over on the next run
  funceble clean -f hosts.txt`,
		Args: cobra.NoArgs,
		RunE: runCleanCmd,
	}

	cmd.Flags().StringP("file", "f", "", "File whose progress is reset")
	addStorageFlags(cmd)

	return cmd
}

// runCleanCmd executes the clean command.
func runCleanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := setString(cmd.Flags(), "file", &cfg.InputFile); err != nil {
		return err
	}

	backend, err := cfg.Backend()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closer, err := log.NewLogger(log.Options{
		Writer:  cmd.ErrOrStderr(),
		Verbose: cfg.Verbose,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	ds, err := dataset.Open(ctx, dataset.Options{
		Backend:  backend,
		DSN:      cfg.DSN,
		DataDir:  cfg.DataDir,
		Continue: cfg.InputFile != "",
		Whois:    true,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open datasets: %w", err)
	}
	defer ds.Close()

	out := cmd.OutOrStdout()

	removed, err := ds.Whois.Cleanup(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to clean whois dataset: %w", err)
	}
	fmt.Fprintf(out, "Removed %d expired WHOIS records\n", removed)

	if cfg.InputFile == "" {
		return nil
	}

	rows, err := ds.Continue.CleanupSource(ctx, cfg.InputFile)
	if err != nil {
		return fmt.Errorf("failed to clean continue dataset: %w", err)
	}
	if err := preload.RemoveDescription(cfg.OutputDir, filepath.Base(cfg.InputFile)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reset %s: %d continue rows removed\n", cfg.InputFile, rows)
	return nil
}
