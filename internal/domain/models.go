package domain

import (
	"time"

	"github.com/google/uuid"
)

type TargetID = uuid.UUID

// Protocol selects which prober handles a target. It never changes for a given
// target id; switching protocol means deleting and recreating the target.
type Protocol string

const (
	ProtocolHTTP Protocol = "HTTP"
	ProtocolDNS  Protocol = "DNS"
)

// State is the last observed reachability of a target.
type State int

const (
	StateUnknown State = iota
	StateUp
	StateDown
	StateTimeout
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	case StateTimeout:
		return "timeout"
	default:
		return "invalid"
	}
}

type Target struct {
	ID       TargetID `json:"id"`
	Enabled  bool     `json:"enabled"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Protocol Protocol `json:"protocol"`
	// Interval is the polling period in seconds.
	Interval int32  `json:"interval"`
	State    State  `json:"state"`
	Metadata string `json:"metadata"`
}

func (t Target) IntervalDuration() time.Duration {
	return time.Duration(t.Interval) * time.Second
}

// ProbeRecord is one append-only probe fact. Latency and status are nil when
// the probe produced no response.
type ProbeRecord struct {
	TargetID   TargetID  `json:"target_id"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	LatencyMS  *uint64   `json:"latency_ms"`
	StatusCode *uint16   `json:"status_code"`
}
