package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name looked up in the current
// directory.
const DefaultConfigFile = ".funceble.yaml"

// XDGConfigFile is the configuration file name looked up in XDGConfigDir.
const XDGConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file. Unset keys keep the defaults.
type File struct {
	CheckerType string `yaml:"checker_type,omitempty"`
	SubjectType string `yaml:"subject_type,omitempty"`

	MaxWorkers  int           `yaml:"max_workers,omitempty"`
	Cooldown    time.Duration `yaml:"cooldown,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	TimeLimit   time.Duration `yaml:"time_limit,omitempty"`
	RetestAfter time.Duration `yaml:"retest_after,omitempty"`

	DB struct {
		Type    string `yaml:"type,omitempty"`
		DSN     string `yaml:"dsn,omitempty"`
		DataDir string `yaml:"data_dir,omitempty"`
	} `yaml:"db,omitempty"`

	Datasets struct {
		Continue *bool `yaml:"continue,omitempty"`
		Inactive *bool `yaml:"inactive,omitempty"`
		Whois    *bool `yaml:"whois,omitempty"`
		Results  *bool `yaml:"results,omitempty"`
	} `yaml:"datasets,omitempty"`

	Whois struct {
		Lookup *bool  `yaml:"lookup,omitempty"`
		Server string `yaml:"server,omitempty"`
	} `yaml:"whois,omitempty"`

	Preload *bool `yaml:"preload,omitempty"`
	Mining  *bool `yaml:"mining,omitempty"`

	Output struct {
		Dir     string `yaml:"dir,omitempty"`
		Files   *bool  `yaml:"files,omitempty"`
		Unified *bool  `yaml:"unified,omitempty"`
		HostsIP string `yaml:"hosts_ip,omitempty"`
		Quiet   *bool  `yaml:"quiet,omitempty"`
		Simple  *bool  `yaml:"simple,omitempty"`
		Colors  *bool  `yaml:"colors,omitempty"`
	} `yaml:"output,omitempty"`

	LocalNetwork   *bool  `yaml:"local_network,omitempty"`
	FilterPattern  string `yaml:"filter,omitempty"`
	ReputationList string `yaml:"reputation_list,omitempty"`

	Log struct {
		File   string `yaml:"file,omitempty"`
		Format string `yaml:"format,omitempty"`
	} `yaml:"log,omitempty"`
}

// LoadConfigFile reads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &f, nil
}

// Apply copies every value set in f onto c.
func (c *Config) Apply(f *File) error {
	if f == nil {
		return nil
	}

	if f.CheckerType != "" {
		ct, err := model.ParseCheckerType(f.CheckerType)
		if err != nil {
			return err
		}
		c.CheckerType = ct
	}
	if f.SubjectType != "" {
		st, err := model.ParseSubjectType(f.SubjectType)
		if err != nil {
			return err
		}
		c.SubjectType = st
	}

	setInt(&c.MaxWorkers, f.MaxWorkers)
	setDuration(&c.Cooldown, f.Cooldown)
	setDuration(&c.Timeout, f.Timeout)
	setDuration(&c.TimeLimit, f.TimeLimit)
	setDuration(&c.RetestAfter, f.RetestAfter)

	setString(&c.DBType, f.DB.Type)
	setString(&c.DSN, f.DB.DSN)
	setString(&c.DataDir, f.DB.DataDir)

	setBool(&c.Continue, f.Datasets.Continue)
	setBool(&c.Inactive, f.Datasets.Inactive)
	setBool(&c.Whois, f.Datasets.Whois)
	setBool(&c.RecordResults, f.Datasets.Results)

	setBool(&c.WhoisLookup, f.Whois.Lookup)
	setString(&c.WhoisServer, f.Whois.Server)
	setBool(&c.Preload, f.Preload)
	setBool(&c.Mining, f.Mining)

	setString(&c.OutputDir, f.Output.Dir)
	setBool(&c.GenerateFiles, f.Output.Files)
	setBool(&c.Unified, f.Output.Unified)
	setString(&c.HostsIP, f.Output.HostsIP)
	setBool(&c.Quiet, f.Output.Quiet)
	setBool(&c.Simple, f.Output.Simple)
	setBool(&c.Colors, f.Output.Colors)

	setBool(&c.LocalNetwork, f.LocalNetwork)
	setString(&c.FilterPattern, f.FilterPattern)
	setString(&c.ReputationList, f.ReputationList)

	setString(&c.LogFile, f.Log.File)
	setString(&c.LogFormat, f.Log.Format)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .funceble.yaml in the current directory
// 3. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), XDGConfigFile)
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}
