package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/config"
	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/probe"
	"github.com/hamed0406/uptimepinger/internal/repo"
	"github.com/hamed0406/uptimepinger/internal/repo/stores"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pingerctl",
	Short:        "Manage uptime pinger targets",
	SilenceUsage: true,
}

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Add, list, enable and disable targets",
}

var targetAddCmd = &cobra.Command{
	Use:   "add NAME ADDRESS",
	Short: "Insert an enabled target in the unknown state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := targetFromFlags(cmd, args[0], args[1])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, st repo.Store) error {
			if err := st.InsertTarget(ctx, t); err != nil {
				return err
			}
			fmt.Printf("Added target %s (%s)\n", t.ID, t.Name)
			return nil
		})
	},
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st repo.Store) error {
			ts, err := st.EnumerateTargets(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROTOCOL\tINTERVAL\tENABLED\tSTATE\tADDRESS")
			for _, t := range ts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%t\t%s\t%s\n", t.ID, t.Name, t.Protocol, t.Interval, t.Enabled, t.State, t.Address)
			}
			return w.Flush()
		})
	},
}

func setEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("bad target id %q: %w", args[0], err)
			}
			return withStore(cmd.Context(), func(ctx context.Context, st repo.Store) error {
				if err := st.SetTargetEnabled(ctx, id, enabled); err != nil {
					return err
				}
				fmt.Printf("Target %s enabled=%t\n", id, enabled)
				return nil
			})
		},
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Log store activity to stderr")

	f := targetAddCmd.Flags()
	f.String("protocol", string(domain.ProtocolHTTP), "Protocol: HTTP or DNS")
	f.Int32("interval", 60, "Polling interval in seconds")
	f.String("method", "GET", "HTTP method")
	f.String("body", "", "HTTP request body (sent as given)")
	f.Uint16("success-min", 200, "Lowest HTTP status counted as up")
	f.Uint16("success-max", 299, "Highest HTTP status counted as up")
	f.Bool("insecure", false, "Skip TLS certificate verification")
	f.Int("redirects", 0, "Number of redirects to follow")
	f.StringArray("header", nil, "Extra header as Name=Value (repeatable)")
	f.Int32("timeout", 0, "Probe timeout in seconds (0 for default)")
	f.String("dns-server", "", "DNS server host[:port] (default from resolv.conf)")
	f.String("dns-type", "A", "DNS record type")

	targetCmd.AddCommand(targetAddCmd)
	targetCmd.AddCommand(targetListCmd)
	targetCmd.AddCommand(setEnabledCmd("disable", "Stop probing a target", false))
	targetCmd.AddCommand(setEnabledCmd("enable", "Resume probing a target", true))
	rootCmd.AddCommand(targetCmd)
}

func targetFromFlags(cmd *cobra.Command, name, address string) (domain.Target, error) {
	f := cmd.Flags()
	proto, _ := f.GetString("protocol")
	interval, _ := f.GetInt32("interval")
	timeout, _ := f.GetInt32("timeout")
	if interval < 1 {
		return domain.Target{}, fmt.Errorf("interval must be at least 1 second")
	}

	var md string
	switch domain.Protocol(strings.ToUpper(proto)) {
	case domain.ProtocolHTTP:
		method, _ := f.GetString("method")
		body, _ := f.GetString("body")
		smin, _ := f.GetUint16("success-min")
		smax, _ := f.GetUint16("success-max")
		insecure, _ := f.GetBool("insecure")
		redirects, _ := f.GetInt("redirects")
		headers, _ := f.GetStringArray("header")
		m, err := httpMetadata(method, body, smin, smax, insecure, redirects, headers, timeout)
		if err != nil {
			return domain.Target{}, err
		}
		md = m
	case domain.ProtocolDNS:
		server, _ := f.GetString("dns-server")
		qtype, _ := f.GetString("dns-type")
		m, err := dnsMetadata(server, qtype, timeout)
		if err != nil {
			return domain.Target{}, err
		}
		md = m
	default:
		return domain.Target{}, fmt.Errorf("unsupported protocol %q", proto)
	}

	return domain.Target{
		ID:       uuid.New(),
		Enabled:  true,
		Name:     name,
		Address:  address,
		Protocol: domain.Protocol(strings.ToUpper(proto)),
		Interval: interval,
		State:    domain.StateUnknown,
		Metadata: md,
	}, nil
}

func httpMetadata(method, body string, smin, smax uint16, insecure bool, redirects int, headers []string, timeout int32) (string, error) {
	if smin > smax {
		return "", fmt.Errorf("success-min %d is above success-max %d", smin, smax)
	}
	md := probe.HTTPMetadata{
		Method:     strings.ToUpper(method),
		SuccessMin: smin,
		SuccessMax: smax,
		Insecure:   insecure,
	}
	if body != "" {
		b := base64.StdEncoding.EncodeToString([]byte(body))
		md.Body = &b
	}
	if redirects > 0 {
		md.FollowRedirects = &redirects
	}
	if timeout > 0 {
		md.Timeout = &timeout
	}
	for _, h := range headers {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return "", fmt.Errorf("bad header %q, want Name=Value", h)
		}
		if md.Headers == nil {
			md.Headers = map[string]string{}
		}
		md.Headers[strings.TrimSpace(k)] = v
	}
	raw := md.Encode()
	// same parser the worker uses
	if _, err := probe.NewHTTPProber("").Prepare("http://localhost", raw); err != nil {
		return "", err
	}
	return raw, nil
}

func dnsMetadata(server, qtype string, timeout int32) (string, error) {
	md := probe.DNSMetadata{Server: server, Type: strings.ToUpper(qtype)}
	if timeout > 0 {
		md.Timeout = &timeout
	}
	raw, err := md.Encode()
	if err != nil {
		return "", err
	}
	if _, err := probe.ParseDNSMetadata(raw); err != nil {
		return "", err
	}
	return raw, nil
}

func withStore(ctx context.Context, fn func(context.Context, repo.Store) error) error {
	sc, err := config.LoadStore()
	if err != nil {
		return err
	}
	log := zap.NewNop()
	if v, _ := rootCmd.PersistentFlags().GetBool("verbose"); v {
		log, _ = zap.NewDevelopment()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := stores.Open(ctx, sc, log)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}
