package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// publisher is the part of *nats.Conn used here.
type publisher interface {
	Publish(subj string, data []byte) error
}

// Event is the JSON document published for every transition.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Time       time.Time `json:"time"`
	TargetID   string    `json:"target_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Protocol   string    `json:"protocol"`
	Previous   string    `json:"previous_state"`
	Current    string    `json:"current_state"`
	StatusCode *uint16   `json:"status_code"`
	LatencyMS  *uint64   `json:"latency_ms"`
}

type NATS struct {
	pub     publisher
	conn    *nats.Conn
	subject string
}

// ConnectNATS dials the server; subject receives one message per transition.
func ConnectNATS(url, subject string, opts ...nats.Option) (*NATS, error) {
	opts = append([]nats.Option{nats.Name("uptimepinger"), nats.MaxReconnects(-1)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{pub: nc, conn: nc, subject: subject}, nil
}

func (n *NATS) Notify(ctx context.Context, tr Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := Event{
		ID:         uuid.NewString(),
		Type:       "uptimepinger.target.state",
		Source:     "uptimepinger/worker",
		Time:       tr.At.UTC(),
		TargetID:   tr.Target.ID.String(),
		Name:       tr.Target.Name,
		Address:    tr.Target.Address,
		Protocol:   string(tr.Target.Protocol),
		Previous:   tr.From.String(),
		Current:    tr.To.String(),
		StatusCode: tr.StatusCode,
		LatencyMS:  tr.LatencyMS,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal transition event: %w", err)
	}
	if err := n.pub.Publish(n.subject, b); err != nil {
		return fmt.Errorf("publish transition event: %w", err)
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
