package checker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/convert"
	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// ReputationChecker flags subjects found in a blocklist as malicious.
type ReputationChecker struct {
	blocklist map[string]struct{}
	now       func() time.Time
}

// NewReputationChecker creates a checker over a set of IDNA subjects.
func NewReputationChecker(entries []string) *ReputationChecker {
	c := &ReputationChecker{
		blocklist: make(map[string]struct{}, len(entries)),
		now:       time.Now,
	}
	for _, e := range entries {
		if s, err := model.NewSubject(e); err == nil {
			c.blocklist[s.IDNA] = struct{}{}
		}
	}
	return c
}

// LoadReputationChecker reads a blocklist in plain or hosts format.
func LoadReputationChecker(path string) (*ReputationChecker, error) {
	if path == "" {
		return nil, ErrNoBlocklist
	}
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist: %w", err)
	}
	defer f.Close()

	entries, err := ReadList(f, convert.Plain{})
	if err != nil {
		return nil, fmt.Errorf("failed to read blocklist %s: %w", path, err)
	}
	return NewReputationChecker(entries), nil
}

// ReadList expands every line of r through conv.
func ReadList(r io.Reader, conv convert.Converter) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		out = append(out, conv.Convert(scanner.Text())...)
	}
	return out, scanner.Err()
}

// Len returns the number of blocklisted subjects.
func (c *ReputationChecker) Len() int {
	return len(c.blocklist)
}

// Check implements Checker. URLs are judged by their host.
func (c *ReputationChecker) Check(_ context.Context, subject model.Subject, _ model.CheckerType, _ model.SubjectType) (*model.TestResult, error) {
	status := model.StatusSane
	if _, ok := c.blocklist[subject.IDNA]; ok {
		status = model.StatusMalicious
	} else if _, ok := c.blocklist[subject.Host()]; ok {
		status = model.StatusMalicious
	}
	return newResult(subject, status, SourceReputation, c.now), nil
}
