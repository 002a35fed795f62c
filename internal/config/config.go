package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
	"github.com/funilrys/PyFunceble-sub002/internal/dataset"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "funceble"

	// DefaultMaxWorkers is the size of the tester pool. Checks mostly wait
	// on the network, so the pool is larger than the CPU count.
	DefaultMaxWorkers = 10

	// DefaultTimeout bounds each DNS, HTTP and WHOIS lookup.
	DefaultTimeout = 5 * time.Second

	// DefaultOutputDir is where the status files are written.
	DefaultOutputDir = "output"

	// DefaultHostsIP prefixes every line of the hosts files.
	DefaultHostsIP = "0.0.0.0"

	// DefaultRetestAfter is how long a subject stays inactive before it is
	// tested again.
	DefaultRetestAfter = 24 * time.Hour

	// DefaultWhoisServer is the first server asked for WHOIS data. It refers
	// to the registry of each TLD.
	DefaultWhoisServer = "whois.iana.org"

	// DefaultLogFormat is the log handler format.
	DefaultLogFormat = "text"
)

// Config holds every option of a run. It is built once from defaults, the
// configuration file and the command line, then passed to each constructor.
type Config struct {
	// InputFile is the list of subjects to test. Empty when only Subjects are given.
	InputFile string

	// Subjects are tested directly, without deduplication.
	Subjects []string

	CheckerType model.CheckerType
	SubjectType model.SubjectType

	// MaxWorkers is the number of concurrent checks.
	MaxWorkers int

	// Cooldown is slept before each check.
	Cooldown time.Duration

	// Timeout bounds each network lookup.
	Timeout time.Duration

	// TimeLimit stops feeding new subjects once the run is older than it.
	// Zero means no limit.
	TimeLimit time.Duration

	// DBType selects the dataset backend: csv, sqlite, mariadb, mysql or postgresql.
	DBType string

	// DSN is the database connection string. Optional for sqlite.
	DSN string

	// DataDir holds the CSV datasets and the default SQLite database.
	// Defaults to the XDG data directory (~/.local/share/funceble on Linux).
	DataDir string

	// OutputDir is the root of the status files.
	OutputDir string

	// Continue enables the continue dataset, which lets an interrupted run
	// resume without testing a subject twice.
	Continue bool

	// Inactive enables the inactive dataset.
	Inactive bool

	// Whois enables the WHOIS cache.
	Whois bool

	// WhoisLookup queries WHOIS servers for expiration dates.
	WhoisLookup bool

	// WhoisServer is the first WHOIS server asked.
	WhoisServer string

	// RecordResults appends every result to the SQL results table.
	RecordResults bool

	// Preload seeds the continue dataset from the input file before testing.
	Preload bool

	// RetestAfter is how long an inactive subject is skipped.
	RetestAfter time.Duration

	// Mining fetches the subjects found up and tests the related subjects
	// they link or redirect to. Needs the continue dataset.
	Mining bool

	// GenerateFiles writes the status files.
	GenerateFiles bool

	// Unified writes one results file instead of one file per status.
	Unified bool

	// HostsIP prefixes the lines of the hosts files.
	HostsIP string

	// Quiet prints no result line.
	Quiet bool

	// Simple prints "subject status" lines.
	Simple bool

	// Colors colours the statuses.
	Colors bool

	// LocalNetwork keeps reserved IP addresses.
	LocalNetwork bool

	// FilterPattern keeps only the subjects matching this regular expression.
	FilterPattern string

	// ReputationList is a file of known malicious subjects. Required for
	// the REPUTATION checker.
	ReputationList string

	// Verbose enables debug logs.
	Verbose bool

	// LogFile duplicates the logs to a rotated file.
	LogFile string

	// LogFormat is text or json.
	LogFormat string

	// ConfigFilePath is the path of the configuration file.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		CheckerType:   model.CheckerAvailability,
		SubjectType:   model.SubjectTypeDomain,
		MaxWorkers:    DefaultMaxWorkers,
		Timeout:       DefaultTimeout,
		DBType:        string(dataset.BackendCSV),
		DataDir:       XDGDataDir(),
		OutputDir:     DefaultOutputDir,
		Continue:      true,
		Inactive:      true,
		Whois:         true,
		WhoisLookup:   true,
		WhoisServer:   DefaultWhoisServer,
		Preload:       true,
		RetestAfter:   DefaultRetestAfter,
		GenerateFiles: true,
		HostsIP:       DefaultHostsIP,
		LogFormat:     DefaultLogFormat,
	}
}

// XDGDataDir returns the XDG data directory for funceble.
// On Linux: ~/.local/share/funceble
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for funceble.
// On Linux: ~/.config/funceble
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Backend returns the parsed DBType.
func (c *Config) Backend() (dataset.Backend, error) {
	return dataset.ParseBackend(c.DBType)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.InputFile == "" && len(c.Subjects) == 0 {
		return ErrNoTarget
	}
	if len(c.InputFile) > model.MaxSubjectLength {
		return ErrInputPathTooLong
	}

	if _, err := model.ParseCheckerType(string(c.CheckerType)); err != nil {
		return err
	}
	if _, err := model.ParseSubjectType(string(c.SubjectType)); err != nil {
		return err
	}

	if c.MaxWorkers <= 0 {
		return ErrInvalidMaxWorkers
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Cooldown < 0 {
		return ErrInvalidCooldown
	}
	if c.TimeLimit < 0 {
		return ErrInvalidTimeLimit
	}
	if c.RetestAfter < 0 {
		return ErrInvalidRetestAfter
	}

	backend, err := c.Backend()
	if err != nil {
		return err
	}
	if backend.IsSQL() && backend != dataset.BackendSQLite && c.DSN == "" {
		return fmt.Errorf("%w: %s", dataset.ErrMissingDSN, backend)
	}

	if c.Quiet && c.Simple {
		return ErrConflictingOutputModes
	}

	if c.FilterPattern != "" {
		if _, err := regexp.Compile(c.FilterPattern); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidFilterPattern, err)
		}
	}

	if c.CheckerType == model.CheckerReputation && c.ReputationList == "" {
		return ErrNoReputationList
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	return nil
}
