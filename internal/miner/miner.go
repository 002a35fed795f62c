package miner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"github.com/funilrys/PyFunceble-sub002/internal/output"
	"github.com/funilrys/PyFunceble-sub002/internal/worker"
	"golang.org/x/net/publicsuffix"
)

// Default limits of a mining request.
const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxBodySize   = 1 << 20
	DefaultMaxPerSubject = 20
	maxRedirects         = 10
	userAgent            = "funceble-miner/1.0"
)

// Seeder records a subject to test in a session.
type Seeder interface {
	Seed(ctx context.Context, sessionID string, subject model.Subject, checkerType model.CheckerType, source string) error
}

// Miner is the worker.Processor of the mining stage.
type Miner struct {
	seeder        Seeder
	client        *http.Client
	progress      *output.Progress
	maxBodySize   int64
	maxPerSubject int
	logger        *slog.Logger

	// seen holds "session\x00idna" keys already seeded by this miner.
	seen  sync.Map
	mined atomic.Int64
}

// Option configures a Miner.
type Option func(*Miner)

// WithHTTPClient replaces the HTTP client. Its CheckRedirect is overridden.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Miner) {
		m.client = client
	}
}

// WithTimeout bounds each fetch of the default client.
func WithTimeout(d time.Duration) Option {
	return func(m *Miner) {
		if d > 0 {
			m.client = &http.Client{Timeout: d}
		}
	}
}

// WithProgress prints an M marker per mined subject.
func WithProgress(p *output.Progress) Option {
	return func(m *Miner) {
		m.progress = p
	}
}

// WithMaxPerSubject caps the subjects mined from one result.
func WithMaxPerSubject(n int) Option {
	return func(m *Miner) {
		if n > 0 {
			m.maxPerSubject = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Miner) {
		m.logger = logger
	}
}

// New creates a Miner seeding into seeder.
func New(seeder Seeder, opts ...Option) *Miner {
	m := &Miner{
		seeder:        seeder,
		client:        &http.Client{Timeout: DefaultTimeout},
		maxBodySize:   DefaultMaxBodySize,
		maxPerSubject: DefaultMaxPerSubject,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mined returns how many subjects were seeded.
func (m *Miner) Mined() int {
	return int(m.mined.Load())
}

// Process implements worker.Processor. Fetch failures are logged and
// skipped; a failing seeder is an error.
func (m *Miner) Process(ctx context.Context, msg any, _ worker.Emitter) error {
	o, ok := msg.(*model.Outcome)
	if !ok || o == nil || o.Request == nil || o.Result == nil {
		return nil
	}
	req := o.Request
	if req.Mined || req.IsSingle() || !o.Result.Status.IsPositive() {
		return nil
	}

	target := pageURL(req.Subject)
	if target == "" {
		return nil
	}

	found, err := m.fetch(ctx, target)
	if err != nil {
		m.logger.Debug("mining fetch failed", "subject", req.Subject.Raw, "error", err)
		return nil
	}

	for _, subject := range m.related(req, found) {
		key := req.SessionID + "\x00" + subject.IDNA
		if _, loaded := m.seen.LoadOrStore(key, struct{}{}); loaded {
			continue
		}
		if err := m.seeder.Seed(ctx, req.SessionID, subject, req.CheckerType, req.Source); err != nil {
			return fmt.Errorf("failed to seed mined subject %s: %w", subject.IDNA, err)
		}
		m.mined.Add(1)
		m.progress.Mark(output.MarkMined)
		m.logger.Debug("subject mined", "from", req.Subject.Raw, "subject", subject.IDNA)
	}
	return nil
}

// pageURL is the page fetched for a subject. IPs are not mined.
func pageURL(s model.Subject) string {
	switch s.Kind {
	case model.KindURL:
		return s.Raw
	case model.KindDomain:
		return "http://" + s.IDNA + "/"
	default:
		return ""
	}
}

// fetch returns the redirect chain of target followed by the links of the
// final page.
func (m *Miner) fetch(ctx context.Context, target string) ([]string, error) {
	var found []string

	client := *m.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		found = append(found, req.URL.String())
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return found, err
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, m.maxBodySize))
		return found, nil
	}

	links, err := ExtractLinks(resp.Request.URL, io.LimitReader(resp.Body, m.maxBodySize))
	if err != nil {
		return found, err
	}
	return append(found, links...), nil
}

// related converts the found URLs to subjects of the request's subject type
// and keeps those under the request's registrable domain.
func (m *Miner) related(req *model.TestRequest, found []string) []model.Subject {
	origin := req.Subject.Host()
	seen := map[string]bool{req.Subject.IDNA: true}

	var out []model.Subject
	for _, link := range found {
		u, err := url.Parse(link)
		if err != nil || !sameSite(origin, u.Hostname()) {
			continue
		}

		raw := u.Hostname()
		if req.SubjectType == model.SubjectTypeURL {
			raw = link
		}
		subject, err := model.NewSubject(raw)
		if err != nil || seen[subject.IDNA] {
			continue
		}
		seen[subject.IDNA] = true
		out = append(out, subject)

		if len(out) == m.maxPerSubject {
			break
		}
	}
	return out
}

// sameSite reports whether two hosts share their registrable domain.
// IP addresses only match themselves.
func sameSite(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if model.DetectKind(a) == model.KindIP || model.DetectKind(b) == model.KindIP {
		return false
	}
	ra, errA := publicsuffix.EffectiveTLDPlusOne(a)
	rb, errB := publicsuffix.EffectiveTLDPlusOne(b)
	return errA == nil && errB == nil && ra == rb
}
