package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

func sampleTransition(from, to domain.State) Transition {
	code := uint16(503)
	lat := uint64(42)
	return Transition{
		Target:     domain.Target{Name: "api", Address: "https://api.example.com", Protocol: domain.ProtocolHTTP},
		From:       from,
		To:         to,
		StatusCode: &code,
		LatencyMS:  &lat,
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSlack_OK(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got = payload["text"]
		w.WriteHeader(200)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if s == nil {
		t.Fatal("expected slack client")
	}
	if err := s.Notify(context.Background(), sampleTransition(domain.StateUp, domain.StateDown)); err != nil {
		t.Fatalf("notify err: %v", err)
	}
	if !strings.HasPrefix(got, "*🔴 Target DOWN*") {
		t.Fatalf("payload not as expected: %q", got)
	}
	for _, want := range []string{"Address: https://api.example.com", "Status: 503", "Latency: 42 ms", "State: up -> down", "Checked: 2026-01-02T03:04:05Z"} {
		if !strings.Contains(got, want) {
			t.Fatalf("payload missing %q: %q", want, got)
		}
	}
}

func TestSlack_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	s := NewSlack(ts.URL)
	if err := s.Send(context.Background(), "X", "Y"); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestSlack_DisabledWithoutWebhook(t *testing.T) {
	if NewSlack("") != nil {
		t.Fatalf("expected nil notifier for empty webhook")
	}
}

func TestFormatTransition_Titles(t *testing.T) {
	cases := []struct {
		from, to domain.State
		want     string
	}{
		{domain.StateDown, domain.StateUp, "🟢 Target RECOVERED"},
		{domain.StateUnknown, domain.StateUp, "🟢 Target UP"},
		{domain.StateUp, domain.StateTimeout, "🟠 Target TIMEOUT"},
		{domain.StateUnknown, domain.StateDown, "🔴 Target DOWN"},
	}
	for _, tc := range cases {
		if title, _ := formatTransition(sampleTransition(tc.from, tc.to)); title != tc.want {
			t.Fatalf("%s->%s: want %q, got %q", tc.from, tc.to, tc.want, title)
		}
	}
}
