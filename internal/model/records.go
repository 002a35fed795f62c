package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// PendingTime is the tested_at value of a continue row seeded by the
// preloader and not tested yet.
var PendingTime = time.Unix(0, 0).UTC()

// WhoisDateLayout is the layout of WhoisRecord.ExpirationDate.
// Stored dates are lowercased ("31-dec-9999"); time.Parse matches month
// names case-insensitively.
const WhoisDateLayout = "02-Jan-2006"

// MaxExpirationDate is the ceiling applied to expiration dates before they
// are stored. SQL DATETIME columns and most date parsers stop at year 9999.
var MaxExpirationDate = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// ContinueRecord says "this subject is part of this session".
// A row whose TestedAt equals PendingTime is still waiting for its test.
type ContinueRecord struct {
	SessionID   string      `json:"session_id"`
	IDNASubject string      `json:"idna_subject"`
	CheckerType CheckerType `json:"checker_type"`
	Source      string      `json:"source"`
	TestedAt    time.Time   `json:"tested_at"`
	// Subject is the subject as read, before IDNA conversion.
	Subject string `json:"subject"`
}

// IsPending reports whether the row was seeded but not tested.
func (r ContinueRecord) IsPending() bool {
	return !r.TestedAt.After(PendingTime)
}

// InactiveRecord says "this subject was down or invalid the last time".
type InactiveRecord struct {
	Subject     string      `json:"subject"`
	IDNASubject string      `json:"idna_subject"`
	Source      string      `json:"source"`
	CheckerType CheckerType `json:"checker_type"`
	TestedAt    time.Time   `json:"tested_at"`
	Status      Status      `json:"status"`
}

// WhoisRecord is a cached expiration-date lookup.
// Epoch is kept as a string so that every backend stores it verbatim; it is
// compared as a float.
type WhoisRecord struct {
	Subject        string `json:"subject"`
	IDNASubject    string `json:"idna_subject"`
	ExpirationDate string `json:"expiration_date"`
	Epoch          string `json:"epoch"`
	Registrar      string `json:"registrar"`
}

// NewWhoisRecord builds a record from an expiration date, clamping dates
// beyond MaxExpirationDate.
func NewWhoisRecord(subject, idnaSubject string, expiration time.Time, registrar string) WhoisRecord {
	r := WhoisRecord{
		Subject:     subject,
		IDNASubject: idnaSubject,
		Registrar:   registrar,
	}
	r.SetExpiration(expiration)
	return r
}

// SetExpiration sets both the date and the epoch, clamping to MaxExpirationDate.
func (r *WhoisRecord) SetExpiration(expiration time.Time) {
	expiration = expiration.UTC()
	if expiration.After(MaxExpirationDate) {
		expiration = MaxExpirationDate
	}
	r.ExpirationDate = strings.ToLower(expiration.Format(WhoisDateLayout))
	r.Epoch = strconv.FormatInt(expiration.Unix(), 10)
}

// EpochValue returns the epoch as a float. Unparsable epochs are NaN.
func (r WhoisRecord) EpochValue() float64 {
	v, err := strconv.ParseFloat(r.Epoch, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Expiration returns the expiration instant derived from the epoch.
func (r WhoisRecord) Expiration() (time.Time, bool) {
	v := r.EpochValue()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	return time.Unix(int64(v), 0).UTC(), true
}

// IsExpired reports whether the record must not be reused at now.
// A record with an unreadable epoch is treated as expired.
func (r WhoisRecord) IsExpired(now time.Time) bool {
	v := r.EpochValue()
	if math.IsNaN(v) {
		return true
	}
	return v < float64(now.Unix())
}

// Overflows reports whether the stored epoch lies beyond MaxExpirationDate.
func (r WhoisRecord) Overflows() bool {
	v := r.EpochValue()
	return math.IsInf(v, 0) || v > float64(MaxExpirationDate.Unix())
}

// PreloadDescription is the persisted read progress of one input file.
type PreloadDescription struct {
	PreviousHash string      `json:"previous_hash"`
	Hash         string      `json:"hash"`
	LineNumber   int         `json:"line_number"`
	CheckerType  CheckerType `json:"checker_type"`
	SubjectType  SubjectType `json:"subject_type"`
	Subject      string      `json:"subject"`
	Destination  string      `json:"destination"`
	OutputDir    string      `json:"output_dir"`
	SessionID    string      `json:"session_id"`
}
