package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/checker"
	"github.com/funilrys/PyFunceble-sub002/internal/config"
	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/log"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// errInterrupted is returned when a signal stopped the run.
var errInterrupted = errors.New("interrupted")

// NewTestCmd creates the test command.
func NewTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [subject...]",
		Short: "Test domains, IP addresses or URLs",
		Long: `Test checks every given subject and writes one status file per status.

Subjects are read from a file (-f), from the arguments, or both. A file is
first preloaded into the continue dataset: interrupt the run and start it
again with the same file to resume where it stopped.

Progress markers:
  X  ignored by a filter rule
  A  already tested in this session
  I  known inactive, not due for a retest
  D  malformed message dropped

Examples:
  # Test a single domain
  funceble test example.org

  # Test a list with 20 concurrent checks
  funceble test -f hosts.txt -w 20

  # Check the syntax of a list of URLs
  funceble test -f urls.txt --checker syntax --subject-type url

  # Store the datasets in PostgreSQL
  funceble test -f hosts.txt --db-type postgresql --dsn "postgres://u:p@localhost/funceble"

  # Stop feeding new subjects after one hour
  funceble test -f hosts.txt --time-limit 1h`,
		Args: cobra.ArbitraryArgs,
		RunE: runTestCmd,
	}

	// Input flags
	cmd.Flags().StringP("file", "f", "", "File of subjects to test, one or more per line")
	cmd.Flags().StringP("checker", "k", string(model.CheckerAvailability),
		"Checker type: availability, syntax or reputation")
	cmd.Flags().String("subject-type", string(model.SubjectTypeDomain),
		"Subject type: domain (domains and IPs) or url")

	// Test behavior flags
	cmd.Flags().IntP("workers", "w", config.DefaultMaxWorkers, "Number of concurrent checks")
	cmd.Flags().Duration("cooldown", 0, "Pause before each check")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout of each DNS, HTTP and WHOIS lookup")
	cmd.Flags().Duration("time-limit", 0, "Stop feeding new subjects after this duration (0 means no limit)")
	cmd.Flags().Duration("retest-after", config.DefaultRetestAfter, "Delay before an inactive subject is tested again")
	cmd.Flags().Bool("local-network", false, "Keep reserved and private IP addresses")
	cmd.Flags().String("filter", "", "Only test the subjects matching this regular expression")
	cmd.Flags().String("reputation-list", "", "Blocklist used by the reputation checker")
	cmd.Flags().Bool("no-preload", false, "Stream the file instead of preloading it")
	cmd.Flags().Bool("mining", false, "Also test the related subjects the subjects found up link or redirect to")
	cmd.Flags().Bool("no-whois-lookup", false, "Do not query WHOIS servers for expiration dates")
	cmd.Flags().String("whois-server", config.DefaultWhoisServer, "First WHOIS server queried")

	// Dataset flags
	addStorageFlags(cmd)
	cmd.Flags().Bool("no-continue", false, "Disable the continue dataset")
	cmd.Flags().Bool("no-inactive", false, "Disable the inactive dataset")
	cmd.Flags().Bool("no-whois", false, "Disable the WHOIS cache")
	cmd.Flags().Bool("results", false, "Record every result in the results table (SQL backends)")

	// Output flags
	cmd.Flags().Bool("no-files", false, "Do not write the status files")
	cmd.Flags().Bool("unified", false, "Write a single results file instead of one per status")
	cmd.Flags().String("hosts-ip", config.DefaultHostsIP, "Address prefixed to the lines of the hosts files")
	cmd.Flags().BoolP("quiet", "q", false, "Print nothing but errors")
	cmd.Flags().BoolP("simple", "s", false, "Print \"subject status\" lines")
	cmd.Flags().Bool("colors", false, "Colour the statuses")
	cmd.Flags().String("log-file", "", "Also write the logs to this rotated file")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "Log format: text or json")

	return cmd
}

// addStorageFlags registers the flags selecting the dataset backend.
func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-type", string(dataset.BackendCSV),
		"Dataset backend: csv, sqlite, mariadb, mysql or postgresql")
	cmd.Flags().String("dsn", "", "Database connection string (mariadb, mysql, postgresql)")
	cmd.Flags().String("data-dir", "", "Directory of the CSV datasets and SQLite database (default: XDG data directory)")
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir, "Root directory of the status files")
}

// runTestCmd executes the test command.
func runTestCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyTestFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	cfg.Subjects = args

	if err := cfg.Validate(); err != nil {
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
	slog.SetDefault(logger)

	// Handle interrupt signals: the preloader and the continue dataset keep
	// the progress made so far.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runTest(ctx, cfg, cmd.OutOrStdout(), logger)
}

// runTest opens the datasets and runs one session.
func runTest(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	ds, err := openDatasets(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("failed to close datasets", "error", err)
		}
	}()

	registry, err := buildRegistry(cfg, ds, logger)
	if err != nil {
		return err
	}

	runner, err := pipeline.New(cfg, ds, registry,
		pipeline.WithLogger(logger),
		pipeline.WithStdout(stdout),
	)
	if err != nil {
		return err
	}

	logger.Info("starting test",
		"file", cfg.InputFile,
		"subjects", len(cfg.Subjects),
		"checker", cfg.CheckerType,
		"workers", cfg.MaxWorkers,
		"backend", ds.Backend,
	)

	summary, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stdout, "\nInterrupted. Run the same command again to resume.")
			return fmt.Errorf("%w: %w", errInterrupted, err)
		}
		return err
	}

	if summary.TimeExceeded {
		fmt.Fprintf(stdout, "\nTime limit of %s reached. Run the same command again to resume.\n", cfg.TimeLimit)
	}

	logger.Info("test finished",
		"session_id", summary.SessionID,
		"fed", summary.Fed,
		"mined", summary.Mined,
		"total", summary.Total,
		"complete", summary.Complete,
	)
	return nil
}

// openDatasets opens the configured backend. Direct subjects are never
// deduplicated, so they only use the WHOIS cache.
func openDatasets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dataset.Datasets, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	listMode := cfg.InputFile != ""
	ds, err := dataset.Open(ctx, dataset.Options{
		Backend:  backend,
		DSN:      cfg.DSN,
		DataDir:  cfg.DataDir,
		Continue: cfg.Continue && listMode,
		Inactive: cfg.Inactive && listMode,
		Whois:    cfg.Whois,
		Results:  cfg.RecordResults,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open datasets: %w", err)
	}
	logger.Debug("datasets opened", "backend", backend, "dir", cfg.DataDir, "dsn", cfg.DSN)
	return ds, nil
}

// buildRegistry creates the checkers of the configuration.
func buildRegistry(cfg *config.Config, ds *dataset.Datasets, logger *slog.Logger) (*checker.Registry, error) {
	opts := []checker.AvailabilityOption{
		checker.WithTimeout(cfg.Timeout),
		checker.WithAvailabilityLogger(logger),
	}
	if cfg.WhoisLookup {
		opts = append(opts, checker.WithWhois(ds.Whois, checker.NewTCPWhoisClient(cfg.WhoisServer, cfg.Timeout)))
	} else if cfg.Whois {
		opts = append(opts, checker.WithWhois(ds.Whois, nil))
	}

	var reputation *checker.ReputationChecker
	if cfg.CheckerType == model.CheckerReputation {
		var err error
		reputation, err = checker.LoadReputationChecker(cfg.ReputationList)
		if err != nil {
			return nil, err
		}
		logger.Info("blocklist loaded", "path", cfg.ReputationList, "entries", reputation.Len())
	}

	return checker.Default(checker.NewSyntaxChecker(), checker.NewAvailabilityChecker(opts...), reputation), nil
}

// buildConfig creates a Config from the defaults, the configuration file and
// the flags shared by every command.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.ConfigFilePath = getConfigFlag(cmd)

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently keep the defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.Apply(f); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if err := applyStorageFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the config file path from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// applyStorageFlags overrides the configuration with the storage flags set
// on the command line.
func applyStorageFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	return errors.Join(
		setString(flags, "db-type", &cfg.DBType),
		setString(flags, "dsn", &cfg.DSN),
		setString(flags, "data-dir", &cfg.DataDir),
		setString(flags, "output-dir", &cfg.OutputDir),
	)
}

// applyTestFlags overrides the configuration with the test flags set on the
// command line. Unset flags keep the file or default value.
func applyTestFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("checker") {
		v, _ := flags.GetString("checker")
		ct, err := model.ParseCheckerType(v)
		if err != nil {
			return err
		}
		cfg.CheckerType = ct
	}
	if flags.Changed("subject-type") {
		v, _ := flags.GetString("subject-type")
		st, err := model.ParseSubjectType(v)
		if err != nil {
			return err
		}
		cfg.SubjectType = st
	}

	return errors.Join(
		setString(flags, "file", &cfg.InputFile),
		setInt(flags, "workers", &cfg.MaxWorkers),
		setDuration(flags, "cooldown", &cfg.Cooldown),
		setDuration(flags, "timeout", &cfg.Timeout),
		setDuration(flags, "time-limit", &cfg.TimeLimit),
		setDuration(flags, "retest-after", &cfg.RetestAfter),
		setBool(flags, "local-network", &cfg.LocalNetwork),
		setString(flags, "filter", &cfg.FilterPattern),
		setString(flags, "reputation-list", &cfg.ReputationList),
		setNegatedBool(flags, "no-preload", &cfg.Preload),
		setBool(flags, "mining", &cfg.Mining),
		setNegatedBool(flags, "no-whois-lookup", &cfg.WhoisLookup),
		setString(flags, "whois-server", &cfg.WhoisServer),
		setNegatedBool(flags, "no-continue", &cfg.Continue),
		setNegatedBool(flags, "no-inactive", &cfg.Inactive),
		setNegatedBool(flags, "no-whois", &cfg.Whois),
		setBool(flags, "results", &cfg.RecordResults),
		setNegatedBool(flags, "no-files", &cfg.GenerateFiles),
		setBool(flags, "unified", &cfg.Unified),
		setString(flags, "hosts-ip", &cfg.HostsIP),
		setBool(flags, "quiet", &cfg.Quiet),
		setBool(flags, "simple", &cfg.Simple),
		setBool(flags, "colors", &cfg.Colors),
		setString(flags, "log-file", &cfg.LogFile),
		setString(flags, "log-format", &cfg.LogFormat),
	)
}

func setString(flags *pflag.FlagSet, name string, dst *string) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setInt(flags *pflag.FlagSet, name string, dst *int) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setDuration(flags *pflag.FlagSet, name string, dst *time.Duration) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setBool(flags *pflag.FlagSet, name string, dst *bool) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// setNegatedBool applies a --no-xxx flag to a setting enabled by default.
func setNegatedBool(flags *pflag.FlagSet, name string, dst *bool) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetBool(name)
	if err != nil {
		return err
	}
	*dst = !v
	return nil
}
