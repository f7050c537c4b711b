package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const DefaultDNSTimeout = 5 * time.Second

// DNSMetadata configures a DNS target. The target address is the name to
// resolve; a URL is accepted and reduced to its host.
type DNSMetadata struct {
	Server string `json:"s,omitempty"` // host:port, defaults to the first resolv.conf nameserver
	Type   string `json:"q,omitempty"` // record type, defaults to A
	// Timeout in seconds.
	Timeout *int32 `json:"t,omitempty"`
}

func ParseDNSMetadata(raw string) (DNSMetadata, error) {
	var md DNSMetadata
	if strings.TrimSpace(raw) == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return DNSMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if md.Type != "" {
		if _, ok := dns.StringToType[strings.ToUpper(md.Type)]; !ok {
			return DNSMetadata{}, fmt.Errorf("%w: unknown record type %q", ErrInvalidMetadata, md.Type)
		}
	}
	return md, nil
}

type DNSProber struct {
	// ResolvConf is read when a target names no server.
	ResolvConf string
}

func NewDNSProber() *DNSProber {
	return &DNSProber{ResolvConf: "/etc/resolv.conf"}
}

func (p *DNSProber) Prepare(address, metadata string) (Check, error) {
	md, err := ParseDNSMetadata(metadata)
	if err != nil {
		return nil, err
	}
	host := extractHost(address)
	if host == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidMetadata)
	}

	qtype := dns.TypeA
	if md.Type != "" {
		qtype = dns.StringToType[strings.ToUpper(md.Type)]
	}
	timeout := DefaultDNSTimeout
	if md.Timeout != nil && *md.Timeout > 0 {
		timeout = time.Duration(*md.Timeout) * time.Second
	}

	c := &dnsCheck{
		name:   dns.Fqdn(host),
		qtype:  qtype,
		client: &dns.Client{Timeout: timeout},
	}
	if md.Server != "" {
		c.server = withPort(md.Server)
	} else if cfg, err := dns.ClientConfigFromFile(p.ResolvConf); err == nil && len(cfg.Servers) > 0 {
		c.server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	} else {
		// No resolver available; every attempt reports it as a probe error.
		c.buildErr = fmt.Errorf("no dns server configured")
	}
	return c, nil
}

type dnsCheck struct {
	name     string
	qtype    uint16
	server   string
	client   *dns.Client
	buildErr error
}

func (c *dnsCheck) Probe(ctx context.Context) (Outcome, error) {
	if c.buildErr != nil {
		return Outcome{}, c.buildErr
	}

	m := new(dns.Msg)
	m.SetQuestion(c.name, c.qtype)
	m.RecursionDesired = true

	resp, rtt, err := c.client.ExchangeContext(ctx, m, c.server)
	if err != nil {
		if isTimeout(err) {
			return Timeout(), nil
		}
		return Outcome{}, fmt.Errorf("dns exchange with %s: %w", c.server, err)
	}

	rcode := uint16(resp.Rcode)
	if resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0 {
		return Up(rtt, rcode), nil
	}
	return Down(rtt, rcode), nil
}

func extractHost(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

func withPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}

// Encode renders m in the persisted format.
func (m DNSMetadata) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
