package checker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// Resolver is the subset of *net.Resolver used by the availability checker.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// AvailabilityChecker decides whether a subject is up or down.
// Domains are resolved, IPs are reverse-resolved and URLs are fetched.
// Syntactically invalid subjects are reported invalid without any lookup.
type AvailabilityChecker struct {
	syntax   *SyntaxChecker
	resolver Resolver
	client   *http.Client
	timeout  time.Duration

	whoisCache  WhoisCache
	whoisClient WhoisClient

	logger *slog.Logger
	now    func() time.Time
}

// AvailabilityOption configures an AvailabilityChecker.
type AvailabilityOption func(*AvailabilityChecker)

// WithResolver replaces the DNS resolver.
func WithResolver(r Resolver) AvailabilityOption {
	return func(c *AvailabilityChecker) {
		c.resolver = r
	}
}

// WithHTTPClient replaces the HTTP client used for URLs.
func WithHTTPClient(client *http.Client) AvailabilityOption {
	return func(c *AvailabilityChecker) {
		c.client = client
	}
}

// WithTimeout bounds every lookup.
func WithTimeout(d time.Duration) AvailabilityOption {
	return func(c *AvailabilityChecker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithWhois enables expiration date lookups. cache is consulted first; client
// may be nil to only reuse cached records.
func WithWhois(cache WhoisCache, client WhoisClient) AvailabilityOption {
	return func(c *AvailabilityChecker) {
		c.whoisCache = cache
		c.whoisClient = client
	}
}

// WithAvailabilityLogger sets a custom logger.
func WithAvailabilityLogger(logger *slog.Logger) AvailabilityOption {
	return func(c *AvailabilityChecker) {
		c.logger = logger
	}
}

// NewAvailabilityChecker creates an AvailabilityChecker.
func NewAvailabilityChecker(opts ...AvailabilityOption) *AvailabilityChecker {
	c := &AvailabilityChecker{
		syntax:   NewSyntaxChecker(),
		resolver: net.DefaultResolver,
		timeout:  5 * time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{
			Timeout: c.timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return c
}

// Check implements Checker.
func (c *AvailabilityChecker) Check(ctx context.Context, subject model.Subject, _ model.CheckerType, subjectType model.SubjectType) (*model.TestResult, error) {
	if !c.syntax.Valid(subject, subjectType) {
		return newResult(subject, model.StatusInvalid, SourceSyntax, c.now), nil
	}

	var result *model.TestResult
	switch {
	case subjectType == model.SubjectTypeURL:
		result = c.checkURL(ctx, subject)
	case subject.Kind == model.KindIP:
		result = c.checkIP(ctx, subject)
	default:
		result = c.checkDomain(ctx, subject)
	}

	if subject.Kind != model.KindIP {
		c.fillExpiration(ctx, subject, result)
	}
	return result, nil
}

func (c *AvailabilityChecker) checkDomain(ctx context.Context, subject model.Subject) *model.TestResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addrs, err := c.resolver.LookupHost(ctx, subject.IDNA)
	if err != nil || len(addrs) == 0 {
		c.logger.Debug("dns lookup failed", "subject", subject.IDNA, "error", err)
		return newResult(subject, model.StatusDown, SourceDNS, c.now)
	}
	return newResult(subject, model.StatusUp, SourceDNS, c.now)
}

func (c *AvailabilityChecker) checkIP(ctx context.Context, subject model.Subject) *model.TestResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	names, err := c.resolver.LookupAddr(ctx, subject.IDNA)
	if err != nil || len(names) == 0 {
		c.logger.Debug("reverse lookup failed", "subject", subject.IDNA, "error", err)
		return newResult(subject, model.StatusDown, SourceReverseDNS, c.now)
	}
	return newResult(subject, model.StatusUp, SourceReverseDNS, c.now)
}

func (c *AvailabilityChecker) checkURL(ctx context.Context, subject model.Subject) *model.TestResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, subject.IDNA, nil)
	if err != nil {
		return newResult(subject, model.StatusDown, SourceHTTP, c.now)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("http check failed", "subject", subject.IDNA, "error", err)
		return newResult(subject, model.StatusDown, SourceHTTP, c.now)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	status := model.StatusDown
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		status = model.StatusUp
	}
	result := newResult(subject, status, SourceHTTP, c.now)
	result.HTTPStatusCode = resp.StatusCode
	return result
}

// fillExpiration sets the WHOIS expiration date, preferring unexpired
// cached records over a network lookup.
func (c *AvailabilityChecker) fillExpiration(ctx context.Context, subject model.Subject, result *model.TestResult) {
	host := subject.Host()
	if host == "" || model.DetectKind(host) == model.KindIP {
		return
	}

	if c.whoisCache != nil {
		rec, err := c.whoisCache.GetValid(ctx, host, c.now())
		if err != nil {
			c.logger.Warn("whois cache read failed", "subject", host, "error", err)
		} else if rec != nil {
			if exp, ok := rec.Expiration(); ok {
				result.ExpirationDate = &exp
				result.Registrar = rec.Registrar
				return
			}
		}
	}

	if c.whoisClient == nil {
		return
	}

	exp, registrar, err := c.whoisClient.Lookup(ctx, host)
	if err != nil {
		c.logger.Debug("whois lookup failed", "subject", host, "error", err)
		return
	}
	if !exp.IsZero() {
		result.ExpirationDate = &exp
		result.Registrar = registrar
	}
}
