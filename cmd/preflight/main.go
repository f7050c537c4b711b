// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimepinger/internal/config"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	for _, k := range []string{"DB_USERNAME", "DB_PASSWORD"} {
		p := strings.TrimSpace(os.Getenv(k))
		if p == "" {
			// config.Load reports this when the store needs it.
			continue
		}
		st, err := os.Stat(p)
		switch {
		case err != nil:
			fail(k + " points to an unreadable file: " + err.Error())
		case st.Mode().Perm()&0o077 != 0:
			warn(k + " file is readable by group/others (" + st.Mode().Perm().String() + ").")
		default:
			ok(k + " file present")
		}
	}

	cfg, err := config.Load()
	for _, e := range multierr.Errors(err) {
		fail(e.Error())
	}
	if err != nil {
		os.Exit(1)
	}

	ok("STORE_DRIVER=" + cfg.Store.Driver)
	ok(fmt.Sprintf("sync every %s, enumerate deadline %s", cfg.SyncInterval, cfg.SyncTimeout))
	if cfg.SyncTimeout > cfg.SyncInterval {
		warn("PINGER_DB_SYNC_TIMEOUT is longer than PINGER_DB_SYNC_INTERVAL; slow cycles will run back to back.")
	}
	ok(fmt.Sprintf("logs in %s, kept %d days", cfg.LogDir, cfg.LogRetentionDays))

	if cfg.OpsAddr == "" {
		warn("OPS_ADDR empty; no health, readiness or metrics endpoint.")
	} else {
		ok("OPS_ADDR=" + cfg.OpsAddr)
		if len(cfg.OpsAPIKeys) == 0 {
			warn("OPS_API_KEYS empty; /api/workers is open to anyone who can reach OPS_ADDR.")
		}
	}

	if cfg.SlackWebhook == "" && cfg.NATSURL == "" {
		warn("no SLACK_WEBHOOK_URL or NATS_URL; state changes are only logged.")
	}
	if cfg.OTLPEndpoint != "" {
		ok("OTEL_EXPORTER_OTLP_ENDPOINT=" + cfg.OTLPEndpoint)
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
