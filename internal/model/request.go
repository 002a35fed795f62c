package model

import (
	"time"
)

// TestRequest is one unit of work for the tester stage.
type TestRequest struct {
	// Subject is the thing to test.
	Subject Subject `json:"subject"`

	// SessionID identifies the run the request belongs to.
	SessionID string `json:"session_id"`

	// Destination is the name of the output tree, usually derived from the
	// input file name. Empty for direct subjects without file output.
	Destination string `json:"destination"`

	// OutputDir is the root directory of every destination.
	OutputDir string `json:"output_dir"`

	// Source is the input the subject was read from (file path or "stdin").
	// It scopes the inactive and continue datasets.
	Source string `json:"source"`

	SubjectType SubjectType `json:"subject_type"`
	CheckerType CheckerType `json:"checker_type"`
	Type        RequestType `json:"type"`

	// FromInactive is set when the subject is re-tested because it was known inactive.
	FromInactive bool `json:"from_inactive"`

	// FromPreload is set when the subject was seeded by the file preloader.
	FromPreload bool `json:"from_preload"`

	// Mined is set when the subject was discovered while testing another one.
	Mined bool `json:"mined"`
}

// IsSingle reports whether the request bypasses deduplication.
func (r *TestRequest) IsSingle() bool {
	return r.Type == RequestSingle
}

// TestResult is what a checker observed for one subject.
type TestResult struct {
	Status Status `json:"status"`

	// StatusSource names the check that decided the status (DNS, HTTP, SYNTAX, ...).
	StatusSource string `json:"status_source"`

	Subject     string `json:"subject"`
	IDNASubject string `json:"idna_subject"`

	// ExpirationDate is set only when a WHOIS expiration date was parsed.
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`

	// Registrar is the WHOIS registrar when known.
	Registrar string `json:"registrar,omitempty"`

	// HTTPStatusCode is the HTTP status code; 0 means none was observed.
	HTTPStatusCode int `json:"http_status_code,omitempty"`

	TestedAt time.Time `json:"tested_at"`
}

// HasExpirationDate reports whether the result carries a parsed expiration date.
func (r *TestResult) HasExpirationDate() bool {
	return r != nil && r.ExpirationDate != nil && !r.ExpirationDate.IsZero()
}

// Outcome is the message emitted by the tester stage for one request.
// Either Result is set, or IgnoredInactive is true and Result is nil.
type Outcome struct {
	Request *TestRequest `json:"request"`
	Result  *TestResult  `json:"result,omitempty"`

	// IgnoredInactive marks a request dropped because the subject is known
	// inactive and was not scheduled for a retest.
	IgnoredInactive bool `json:"ignored_inactive,omitempty"`
}
