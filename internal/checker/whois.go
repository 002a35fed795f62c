package checker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
	"golang.org/x/net/publicsuffix"
)

// DefaultWhoisServer answers with the referral to the registry WHOIS server.
const DefaultWhoisServer = "whois.iana.org"

// WhoisCache is the cached side of WHOIS lookups.
type WhoisCache interface {
	GetValid(ctx context.Context, subject string, now time.Time) (*model.WhoisRecord, error)
}

// WhoisClient fetches a domain expiration date.
// A zero time with a nil error means the server had no date.
type WhoisClient interface {
	Lookup(ctx context.Context, domain string) (expiration time.Time, registrar string, err error)
}

// expirationKeys are the record keys carrying an expiration date, in
// preference order.
var expirationKeys = []string{
	"registry expiry date",
	"registrar registration expiration date",
	"expiration date",
	"expiry date",
	"expires on",
	"expires",
	"paid-till",
	"renewal date",
}

// expirationLayouts are the date layouts seen in WHOIS answers.
var expirationLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006.01.02",
	"02-Jan-2006",
	"02.01.2006",
	"2006/01/02",
	"January 2 2006",
}

// TCPWhoisClient speaks the port 43 WHOIS protocol.
type TCPWhoisClient struct {
	server  string
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCPWhoisClient creates a client starting its lookups at server.
// An empty server uses DefaultWhoisServer.
func NewTCPWhoisClient(server string, timeout time.Duration) *TCPWhoisClient {
	if server == "" {
		server = DefaultWhoisServer
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TCPWhoisClient{server: server, timeout: timeout}
}

// Lookup asks the root server for the registry referral, then queries the
// registry for the registrable domain.
func (c *TCPWhoisClient) Lookup(ctx context.Context, domain string) (time.Time, string, error) {
	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		registrable = domain
	}

	answer, err := c.query(ctx, c.server, registrable)
	if err != nil {
		return time.Time{}, "", err
	}

	if refer := field(answer, "refer", "whois"); refer != "" && refer != c.server {
		answer, err = c.query(ctx, refer, registrable)
		if err != nil {
			return time.Time{}, "", err
		}
	}

	expiration, _ := ParseWhoisExpiration(answer)
	return expiration, field(answer, "registrar"), nil
}

func (c *TCPWhoisClient) query(ctx context.Context, server, domain string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(server, "43"))
	if err != nil {
		return "", fmt.Errorf("whois dial %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := fmt.Fprintf(conn, "%s\r\n", domain); err != nil {
		return "", fmt.Errorf("whois write %s: %w", server, err)
	}

	body, err := io.ReadAll(io.LimitReader(conn, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whois read %s: %w", server, err)
	}
	return string(body), nil
}

// ParseWhoisExpiration extracts the expiration date of a WHOIS answer.
func ParseWhoisExpiration(answer string) (time.Time, bool) {
	value := field(answer, expirationKeys...)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// field returns the value of the first "key: value" line whose key matches
// one of keys, checked in order.
func field(answer string, keys ...string) string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(answer))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := values[key]; !seen {
			values[key] = strings.TrimSpace(value)
		}
	}

	for _, k := range keys {
		if v := values[k]; v != "" {
			return v
		}
	}
	return ""
}
