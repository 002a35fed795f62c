package dataset

import "errors"

var (
	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown dataset backend")

	// ErrUnknownColumn is returned when a filter names a column the dataset
	// does not have.
	ErrUnknownColumn = errors.New("unknown dataset column")

	// ErrMalformedRow is returned when a stored row cannot be decoded.
	ErrMalformedRow = errors.New("malformed dataset row")

	// ErrEpochOverflow is returned when a whois record carries an epoch
	// beyond the storable range.
	ErrEpochOverflow = errors.New("whois epoch out of range")

	// ErrMissingDSN is returned when a network database backend has no DSN.
	ErrMissingDSN = errors.New("database DSN is required")
)
