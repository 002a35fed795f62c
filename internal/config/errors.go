package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when neither an input file nor a subject is given.
	ErrNoTarget = errors.New("no target specified: provide subjects or use --file")

	// ErrInvalidMaxWorkers is returned when the pool size is not positive.
	ErrInvalidMaxWorkers = errors.New("invalid max workers: must be positive")

	// ErrInvalidTimeout is returned when the network timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCooldown is returned when the cooldown is negative.
	ErrInvalidCooldown = errors.New("invalid cooldown: must be non-negative")

	// ErrInvalidTimeLimit is returned when the time limit is negative.
	ErrInvalidTimeLimit = errors.New("invalid time limit: must be non-negative")

	// ErrInvalidRetestAfter is returned when the inactive retest delay is negative.
	ErrInvalidRetestAfter = errors.New("invalid retest delay: must be non-negative")

	// ErrInputPathTooLong is returned when the input file path does not fit
	// the source column of the datasets.
	ErrInputPathTooLong = errors.New("input file path too long")

	// ErrConflictingOutputModes is returned when both --quiet and --simple are set.
	ErrConflictingOutputModes = errors.New("conflicting output modes: --quiet and --simple cannot be used together")

	// ErrInvalidFilterPattern is returned when the filter regex does not compile.
	ErrInvalidFilterPattern = errors.New("invalid filter pattern")

	// ErrNoReputationList is returned when the REPUTATION checker has no list.
	ErrNoReputationList = errors.New("reputation checker requires --reputation-list")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")
)
