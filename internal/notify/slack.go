package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Notify(ctx context.Context, tr Transition) error {
	title, text := formatTransition(tr)
	return s.Send(ctx, title, text)
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, _ := json.Marshal(slackPayload{Text: "*" + title + "*\n" + text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}

func formatTransition(tr Transition) (string, string) {
	var title string
	switch tr.To {
	case domain.StateUp:
		title = "🟢 Target UP"
		if tr.From == domain.StateDown || tr.From == domain.StateTimeout {
			title = "🟢 Target RECOVERED"
		}
	case domain.StateTimeout:
		title = "🟠 Target TIMEOUT"
	default:
		title = "🔴 Target DOWN"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", tr.Target.Name)
	fmt.Fprintf(&b, "Address: %s\n", tr.Target.Address)
	fmt.Fprintf(&b, "Protocol: %s\n", tr.Target.Protocol)
	if tr.StatusCode != nil {
		fmt.Fprintf(&b, "Status: %d\n", *tr.StatusCode)
	}
	if tr.LatencyMS != nil {
		fmt.Fprintf(&b, "Latency: %d ms\n", *tr.LatencyMS)
	}
	fmt.Fprintf(&b, "State: %s -> %s\n", tr.From, tr.To)
	fmt.Fprintf(&b, "Checked: %s", tr.At.UTC().Format(time.RFC3339))
	return title, b.String()
}
