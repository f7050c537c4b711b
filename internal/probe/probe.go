package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

var (
	// ErrUnknownProtocol is returned for a protocol tag with no registered prober.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrInvalidMetadata is returned when a target's metadata cannot be parsed.
	ErrInvalidMetadata = errors.New("invalid metadata")
)

type Kind int

const (
	KindUp Kind = iota + 1
	KindDown
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUp:
		return "up"
	case KindDown:
		return "down"
	case KindTimeout:
		return "timeout"
	default:
		return "invalid"
	}
}

// Outcome is the classification of one probe. Latency and StatusCode are only
// meaningful for KindUp and KindDown.
type Outcome struct {
	Kind       Kind
	Latency    time.Duration
	StatusCode uint16
}

func Up(latency time.Duration, status uint16) Outcome {
	return Outcome{Kind: KindUp, Latency: latency, StatusCode: status}
}

func Down(latency time.Duration, status uint16) Outcome {
	return Outcome{Kind: KindDown, Latency: latency, StatusCode: status}
}

func Timeout() Outcome { return Outcome{Kind: KindTimeout} }

// Check is a prepared probe for one target configuration.
type Check interface {
	// Probe runs one network check. Running out of time is reported as a
	// Timeout outcome, not as an error. Any returned error means the attempt
	// failed for another reason.
	Probe(ctx context.Context) (Outcome, error)
}

// Prober builds checks for one protocol. Prepare parses the raw metadata once
// per configuration version; a parse failure wraps ErrInvalidMetadata.
type Prober interface {
	Prepare(address, metadata string) (Check, error)
}

// Registry maps protocol tags to probers. The set is closed: it is built once
// at startup and never changes.
type Registry map[domain.Protocol]Prober

// NewRegistry returns the registry with every supported protocol.
func NewRegistry(userAgent string) Registry {
	return Registry{
		domain.ProtocolHTTP: NewHTTPProber(userAgent),
		domain.ProtocolDNS:  NewDNSProber(),
	}
}

func (r Registry) Lookup(p domain.Protocol) (Prober, error) {
	pr, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownProtocol, p)
	}
	return pr, nil
}

// isTimeout reports whether err means the probe ran out of time, either by
// the caller's deadline or the transport's own timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
