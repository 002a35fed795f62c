// Package config provides the configuration of a funceble run: defaults,
// validation, and the optional YAML configuration file.
package config
