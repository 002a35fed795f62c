package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/funilrys/PyFunceble-sub002/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/funceble.yaml
var configTemplate []byte

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file holding the defaults",
		Long: `Init writes a documented configuration file listing every option of
funceble test with its default value. Edit it and funceble picks it up from
the current directory (.funceble.yaml) or from the XDG config directory.

Examples:
  # Create .funceble.yaml in the current directory
  funceble init

  # Create the per-user file under $XDG_CONFIG_HOME/funceble
  funceble init --xdg

  # Write somewhere else, replacing an existing file
  funceble init -o ./configs/nightly.yaml -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Configuration file to write")
	cmd.Flags().Bool("xdg", false, "Write the per-user file under the XDG config directory")
	cmd.Flags().BoolP("force", "f", false, "Replace an existing file")
	cmd.MarkFlagsMutuallyExclusive("output", "xdg")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if useXDG {
		path = filepath.Join(config.XDGConfigDir(), config.XDGConfigFile)
	}

	if err := writeConfigTemplate(path, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", path)
	return nil
}

// writeConfigTemplate creates path with the template. Without force an
// existing file is left alone.
func writeConfigTemplate(path string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600) //nolint:gosec // path comes from the user
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	if _, err := f.Write(configTemplate); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return f.Close()
}
