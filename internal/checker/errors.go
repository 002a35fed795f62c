package checker

import "errors"

var (
	// ErrUnknownCheckerKind is returned when no checker is registered for a
	// (subject type, checker type) pair.
	ErrUnknownCheckerKind = errors.New("unknown checker kind")

	// ErrNoBlocklist is returned when the reputation checker has no data.
	ErrNoBlocklist = errors.New("reputation blocklist not configured")
)
