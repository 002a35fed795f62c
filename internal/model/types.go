package model

import (
	"fmt"
	"strings"
)

// CheckerType selects which kind of test is run against a subject.
type CheckerType string

const (
	// CheckerSyntax only validates the textual form of the subject.
	CheckerSyntax CheckerType = "SYNTAX"
	// CheckerAvailability resolves or fetches the subject.
	CheckerAvailability CheckerType = "AVAILABILITY"
	// CheckerReputation looks the subject up in reputation data.
	CheckerReputation CheckerType = "REPUTATION"
)

// CheckerTypes lists every supported checker type in display order.
var CheckerTypes = []CheckerType{CheckerSyntax, CheckerAvailability, CheckerReputation}

// ParseCheckerType parses a checker type case-insensitively.
func ParseCheckerType(s string) (CheckerType, error) {
	ct := CheckerType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range CheckerTypes {
		if ct == known {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCheckerType, s)
}

// String implements fmt.Stringer.
func (c CheckerType) String() string {
	return string(c)
}

// SubjectType tells the checker table how a subject must be tested.
// IPs are tested with the domain checkers.
type SubjectType string

const (
	// SubjectTypeDomain covers domains and IP addresses.
	SubjectTypeDomain SubjectType = "domain"
	// SubjectTypeURL covers full URLs.
	SubjectTypeURL SubjectType = "url"
)

// ParseSubjectType parses a subject type case-insensitively.
func ParseSubjectType(s string) (SubjectType, error) {
	switch st := SubjectType(strings.ToLower(strings.TrimSpace(s))); st {
	case SubjectTypeDomain, SubjectTypeURL:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSubjectType, s)
	}
}

// String implements fmt.Stringer.
func (s SubjectType) String() string {
	return string(s)
}

// RequestType distinguishes a one-off subject from a list entry.
type RequestType string

const (
	// RequestSingle is a subject given directly; it bypasses dedup.
	RequestSingle RequestType = "single"
	// RequestList is a subject coming from an input file.
	RequestList RequestType = "list"
)

// Status is the verdict of a checker.
type Status string

const (
	StatusUp        Status = "up"
	StatusDown      Status = "down"
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusSane      Status = "sane"
	StatusMalicious Status = "malicious"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusUp, StatusDown, StatusValid, StatusInvalid, StatusSane, StatusMalicious}

// IsInactive reports whether the status marks a subject as known broken.
// Only inactive subjects are kept in the inactive dataset.
func (s Status) IsInactive() bool {
	return s == StatusDown || s == StatusInvalid
}

// IsPositive reports whether the status is the "good" outcome of its checker.
func (s Status) IsPositive() bool {
	return s == StatusUp || s == StatusValid || s == StatusSane
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}
