package model

import "errors"

// Model parsing errors.
// They are configuration errors: callers treat them as fatal.
var (
	// ErrUnknownCheckerType is returned for a checker type outside SYNTAX, AVAILABILITY, REPUTATION.
	ErrUnknownCheckerType = errors.New("unknown checker type")

	// ErrUnknownSubjectType is returned for a subject type outside domain, url.
	ErrUnknownSubjectType = errors.New("unknown subject type")

	// ErrUnknownStatus is returned when a stored status cannot be parsed.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrEmptySubject is returned when a subject is blank.
	ErrEmptySubject = errors.New("subject cannot be empty")

	// ErrSubjectTooLong is returned when the canonical form of a subject
	// exceeds MaxSubjectLength.
	ErrSubjectTooLong = errors.New("subject too long")
)
