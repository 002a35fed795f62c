package checker

import (
	"context"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// labelPattern is a single DNS label in its ASCII form.
var labelPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// SyntaxChecker validates the textual form of a subject.
type SyntaxChecker struct {
	now func() time.Time
}

// NewSyntaxChecker creates a SyntaxChecker.
func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{now: time.Now}
}

// Check implements Checker. It returns valid or invalid.
func (c *SyntaxChecker) Check(_ context.Context, subject model.Subject, _ model.CheckerType, subjectType model.SubjectType) (*model.TestResult, error) {
	status := model.StatusInvalid
	if c.Valid(subject, subjectType) {
		status = model.StatusValid
	}
	return newResult(subject, status, SourceSyntax, c.now), nil
}

// Valid reports whether subject is syntactically valid for subjectType.
func (c *SyntaxChecker) Valid(subject model.Subject, subjectType model.SubjectType) bool {
	if subjectType == model.SubjectTypeURL {
		return ValidURL(subject.Raw)
	}

	switch subject.Kind {
	case model.KindIP:
		return ValidIP(subject.Raw)
	case model.KindDomain:
		return ValidDomain(subject.Raw)
	default:
		return false
	}
}

// ValidIP reports whether s is an IPv4 or IPv6 address.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(strings.Trim(s, "[]"))
	return err == nil
}

// ValidDomain reports whether s is a host name under a known public suffix.
func ValidDomain(s string) bool {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
	if s == "" || len(s) > 253 {
		return false
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return false
	}

	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return false
		}
	}

	suffix, icann := publicsuffix.PublicSuffix(ascii)
	if suffix == ascii {
		return false
	}
	// Unlisted TLDs come back as the last label with icann=false.
	return icann || strings.Contains(suffix, ".")
}

// ValidURL reports whether s is an absolute http(s) URL with a valid host.
func ValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	return ValidIP(host) || ValidDomain(host)
}
