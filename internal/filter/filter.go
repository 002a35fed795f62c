package filter

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// reservedNames matches host names found in every hosts file that must
// never be tested.
var reservedNames = regexp.MustCompile(`^(?:localhost|localhost\.localdomain|local|broadcasthost|ip6-localhost|ip6-loopback|ip6-localnet|ip6-mcastprefix|ip6-allnodes|ip6-allrouters|ip6-allhosts|0\.0\.0\.0)$`)

// reservedPrefixes are the special-purpose ranges skipped unless local
// network testing is enabled.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// Filter holds the ignore rules of a run. The zero value only applies the
// reserved name and reserved IP rules.
type Filter struct {
	allowLocal bool
	pattern    *regexp.Regexp
}

// Option configures a Filter.
type Option func(*Filter)

// WithLocalNetwork keeps reserved IP addresses.
func WithLocalNetwork(allow bool) Option {
	return func(f *Filter) {
		f.allowLocal = allow
	}
}

// WithPattern keeps only subjects matching re.
func WithPattern(re *regexp.Regexp) Option {
	return func(f *Filter) {
		f.pattern = re
	}
}

// New creates a Filter.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Compile builds a Filter from a raw regex, as found in configuration.
// An empty pattern disables the regex rule.
func Compile(pattern string, allowLocal bool) (*Filter, error) {
	opts := []Option{WithLocalNetwork(allowLocal)}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		opts = append(opts, WithPattern(re))
	}
	return New(opts...), nil
}

// Reason tells why a subject is ignored.
type Reason string

const (
	// ReasonNone means the subject is kept.
	ReasonNone Reason = ""
	// ReasonReservedName is a hosts-file special name.
	ReasonReservedName Reason = "reserved name"
	// ReasonReservedIP is a special-purpose address.
	ReasonReservedIP Reason = "reserved ip"
	// ReasonPattern is a subject not matching the user regex.
	ReasonPattern Reason = "filter pattern"
)

// Ignored reports whether subject must be skipped.
func (f *Filter) Ignored(subject model.Subject) bool {
	return f.Reason(subject) != ReasonNone
}

// Reason returns why subject is skipped, or ReasonNone.
func (f *Filter) Reason(subject model.Subject) Reason {
	host := strings.ToLower(subject.Host())
	if host == "" {
		host = strings.ToLower(subject.IDNA)
	}

	if reservedNames.MatchString(host) {
		return ReasonReservedName
	}

	if f == nil {
		return ReasonNone
	}

	if !f.allowLocal && IsReservedIP(host) {
		return ReasonReservedIP
	}

	if f.pattern != nil && !f.pattern.MatchString(subject.Raw) && !f.pattern.MatchString(subject.IDNA) {
		return ReasonPattern
	}

	return ReasonNone
}

// IsReservedIP reports whether s is an IP address in a special-purpose range.
// Non-IP input returns false.
func IsReservedIP(s string) bool {
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
