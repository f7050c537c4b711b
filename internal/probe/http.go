package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// DefaultHTTPTimeout applies when a target does not override the timeout.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPMetadata is the per-target HTTP configuration. The short JSON keys are
// the persisted format.
type HTTPMetadata struct {
	Method     string
	Body       *string // base64
	SuccessMin uint16
	SuccessMax uint16
	Insecure   bool
	// FollowRedirects is the redirect limit; nil or 0 means the first
	// response is final.
	FollowRedirects *int
	Headers         map[string]string
	Timeout         *int32 // seconds
}

type httpMetadataJSON struct {
	Method          *string           `json:"m"`
	Body            *string           `json:"b"`
	SuccessMax      *uint16           `json:"mx"`
	SuccessMin      *uint16           `json:"mi"`
	Insecure        *bool             `json:"i"`
	FollowRedirects *int              `json:"r"`
	Headers         map[string]string `json:"h"`
	Timeout         *int32            `json:"t"`
}

// ParseHTTPMetadata decodes and checks the persisted metadata. Method, status
// range and the insecure toggle are required.
func ParseHTTPMetadata(raw string) (HTTPMetadata, error) {
	var j httpMetadataJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return HTTPMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	var missing []string
	if j.Method == nil {
		missing = append(missing, "m")
	}
	if j.SuccessMin == nil {
		missing = append(missing, "mi")
	}
	if j.SuccessMax == nil {
		missing = append(missing, "mx")
	}
	if j.Insecure == nil {
		missing = append(missing, "i")
	}
	if len(missing) > 0 {
		return HTTPMetadata{}, fmt.Errorf("%w: missing field(s) %s", ErrInvalidMetadata, strings.Join(missing, ","))
	}
	if j.FollowRedirects != nil && *j.FollowRedirects < 0 {
		return HTTPMetadata{}, fmt.Errorf("%w: negative redirect limit", ErrInvalidMetadata)
	}
	return HTTPMetadata{
		Method:          *j.Method,
		Body:            j.Body,
		SuccessMin:      *j.SuccessMin,
		SuccessMax:      *j.SuccessMax,
		Insecure:        *j.Insecure,
		FollowRedirects: j.FollowRedirects,
		Headers:         j.Headers,
		Timeout:         j.Timeout,
	}, nil
}

// Encode renders m in the persisted format.
func (m HTTPMetadata) Encode() string {
	j := httpMetadataJSON{
		Method:          &m.Method,
		Body:            m.Body,
		SuccessMax:      &m.SuccessMax,
		SuccessMin:      &m.SuccessMin,
		Insecure:        &m.Insecure,
		FollowRedirects: m.FollowRedirects,
		Headers:         m.Headers,
		Timeout:         m.Timeout,
	}
	b, _ := json.Marshal(j)
	return string(b)
}

func (m HTTPMetadata) InRange(status uint16) bool {
	return status >= m.SuccessMin && status <= m.SuccessMax
}

type HTTPProber struct {
	UserAgent string
}

func NewHTTPProber(userAgent string) *HTTPProber {
	return &HTTPProber{UserAgent: userAgent}
}

func (p *HTTPProber) Prepare(address, metadata string) (Check, error) {
	md, err := ParseHTTPMetadata(metadata)
	if err != nil {
		return nil, err
	}

	timeout := DefaultHTTPTimeout
	if md.Timeout != nil && *md.Timeout > 0 {
		timeout = time.Duration(*md.Timeout) * time.Second
	}
	limit := 0
	if md.FollowRedirects != nil {
		limit = *md.FollowRedirects
	}

	c := &httpCheck{
		address:   address,
		md:        md,
		userAgent: p.UserAgent,
		client: &http.Client{
			Timeout: timeout,
			// One request per interval: keep-alive would only hold sockets
			// open between probes.
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
				TLSClientConfig:   &tls.Config{InsecureSkipVerify: md.Insecure}, // #nosec G402 -- per-target opt-in
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if limit == 0 {
					return http.ErrUseLastResponse
				}
				if len(via) > limit {
					return fmt.Errorf("stopped after %d redirects", limit)
				}
				return nil
			},
		},
	}
	// Request-shape problems fail every attempt as an ordinary probe error
	// rather than ending the worker.
	c.buildErr = c.prepareRequestParts()
	return c, nil
}

type httpCheck struct {
	address   string
	md        HTTPMetadata
	userAgent string
	client    *http.Client
	body      []byte
	buildErr  error
}

func (c *httpCheck) prepareRequestParts() error {
	if !validMethod(c.md.Method) {
		return fmt.Errorf("invalid method %q was provided for request", c.md.Method)
	}
	if c.md.Body != nil {
		b, err := base64.StdEncoding.DecodeString(*c.md.Body)
		if err != nil {
			return fmt.Errorf("invalid request body, %w", err)
		}
		c.body = b
	}
	for n, v := range c.md.Headers {
		if !httpguts.ValidHeaderFieldName(n) {
			return fmt.Errorf("invalid header name '%s'", n)
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return fmt.Errorf("invalid header value '%s'", v)
		}
	}
	return nil
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}
	return strings.IndexFunc(m, func(r rune) bool { return !httpguts.IsTokenRune(r) }) == -1
}

func (c *httpCheck) Probe(ctx context.Context) (Outcome, error) {
	if c.buildErr != nil {
		return Outcome{}, c.buildErr
	}

	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.md.Method, c.address, body)
	if err != nil {
		return Outcome{}, fmt.Errorf("build request: %w", err)
	}
	for n, v := range c.md.Headers {
		req.Header.Set(n, v)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return Timeout(), nil
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fmt.Errorf("request failed, %w", err)
	}
	defer resp.Body.Close()

	status := uint16(resp.StatusCode)
	if c.md.InRange(status) {
		return Up(latency, status), nil
	}
	return Down(latency, status), nil
}
