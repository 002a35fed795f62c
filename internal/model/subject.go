package model

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// SubjectKind is the syntactic family of a subject.
type SubjectKind string

const (
	// KindDomain is a host name.
	KindDomain SubjectKind = "domain"
	// KindIP is an IPv4 or IPv6 address.
	KindIP SubjectKind = "ip"
	// KindURL is anything carrying a scheme.
	KindURL SubjectKind = "url"
)

// MaxSubjectLength bounds the canonical form of a subject in bytes. It is the
// width of the key columns of the SQL datasets.
const MaxSubjectLength = 255

// Subject is an immutable value object for the thing under test.
// IDNA is the canonical ASCII form used as comparison key by every dataset.
type Subject struct {
	Raw  string      `json:"subject"`
	IDNA string      `json:"idna_subject"`
	Kind SubjectKind `json:"kind"`
}

// NewSubject builds a Subject from user input.
// It never fails on exotic input: when the IDNA conversion is impossible the
// lowercased raw value is used as canonical form, and the syntax checker
// decides later.
func NewSubject(raw string) (Subject, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Subject{}, ErrEmptySubject
	}

	kind := DetectKind(raw)
	var canonical string
	switch kind {
	case KindIP:
		canonical = canonicalIP(raw)
	case KindURL:
		canonical = canonicalURL(raw)
	default:
		canonical = ToIDNA(raw)
	}
	if len(canonical) > MaxSubjectLength {
		return Subject{}, fmt.Errorf("%w: %d bytes, limit %d", ErrSubjectTooLong, len(canonical), MaxSubjectLength)
	}

	return Subject{Raw: raw, IDNA: canonical, Kind: kind}, nil
}

// MustNewSubject creates a new Subject or panics if invalid.
// Use only for known-valid subjects in tests or initialization.
func MustNewSubject(raw string) Subject {
	s, err := NewSubject(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the raw subject.
func (s Subject) String() string {
	return s.Raw
}

// Host returns the host part of the subject: the subject itself for domains
// and IPs, the URL host for URLs.
func (s Subject) Host() string {
	if s.Kind != KindURL {
		return s.IDNA
	}
	u, err := url.Parse(s.IDNA)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// DetectKind classifies a raw subject.
func DetectKind(raw string) SubjectKind {
	if strings.Contains(raw, "://") {
		return KindURL
	}
	if _, err := netip.ParseAddr(strings.Trim(raw, "[]")); err == nil {
		return KindIP
	}
	return KindDomain
}

// ToIDNA converts a host name to its lowercase ASCII form.
// The lookup profile is tried first; hosts it rejects (underscores, odd
// labels) fall back to plain punycode so that they still get a stable key.
func ToIDNA(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		return ascii
	}
	if ascii, err := idna.Punycode.ToASCII(host); err == nil && ascii != "" {
		return ascii
	}
	return host
}

func canonicalIP(raw string) string {
	addr, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		return strings.ToLower(raw)
	}
	return addr.String()
}

func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := u.Hostname()
	port := u.Port()
	if DetectKind(host) == KindDomain {
		host = ToIDNA(host)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Scheme = strings.ToLower(u.Scheme)
	return u.String()
}
