package main

import (
	"encoding/base64"
	"testing"

	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/probe"
)

func TestHTTPMetadata_FromFlags(t *testing.T) {
	raw, err := httpMetadata("post", "ping", 200, 204, true, 2, []string{"X-Token=abc", "Accept=*/*"}, 5)
	if err != nil {
		t.Fatalf("httpMetadata: %v", err)
	}
	md, err := probe.ParseHTTPMetadata(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if md.Method != "POST" || md.SuccessMin != 200 || md.SuccessMax != 204 || !md.Insecure {
		t.Fatalf("unexpected metadata %+v", md)
	}
	if md.Body == nil || *md.Body != base64.StdEncoding.EncodeToString([]byte("ping")) {
		t.Fatalf("body not base64 encoded: %v", md.Body)
	}
	if *md.FollowRedirects != 2 || *md.Timeout != 5 || md.Headers["X-Token"] != "abc" {
		t.Fatalf("unexpected metadata %+v", md)
	}
}

func TestHTTPMetadata_Rejects(t *testing.T) {
	if _, err := httpMetadata("GET", "", 300, 200, false, 0, nil, 0); err == nil {
		t.Fatalf("want error for inverted range")
	}
	if _, err := httpMetadata("GET", "", 200, 299, false, 0, []string{"novalue"}, 0); err == nil {
		t.Fatalf("want error for malformed header")
	}
}

func TestTargetFromFlags(t *testing.T) {
	targetAddCmd.Flags().Set("protocol", "dns")
	targetAddCmd.Flags().Set("dns-type", "aaaa")
	targetAddCmd.Flags().Set("interval", "15")
	defer func() {
		targetAddCmd.Flags().Set("protocol", "HTTP")
		targetAddCmd.Flags().Set("dns-type", "A")
		targetAddCmd.Flags().Set("interval", "60")
	}()

	tgt, err := targetFromFlags(targetAddCmd, "resolver", "example.com")
	if err != nil {
		t.Fatalf("targetFromFlags: %v", err)
	}
	if tgt.Protocol != domain.ProtocolDNS || tgt.Interval != 15 || !tgt.Enabled || tgt.State != domain.StateUnknown {
		t.Fatalf("unexpected target %+v", tgt)
	}
	md, err := probe.ParseDNSMetadata(tgt.Metadata)
	if err != nil || md.Type != "AAAA" {
		t.Fatalf("unexpected dns metadata %q: %v", tgt.Metadata, err)
	}
}
