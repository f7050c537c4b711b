package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// StoreConfig is the part of the configuration that operator tooling needs too.
type StoreConfig struct {
	Driver      string // postgres | sqlite | memory
	DatabaseURL string // postgres DSN or sqlite file path
	Username    string // contents of the DB_USERNAME file, if any
	Password    string // contents of the DB_PASSWORD file, if any
}

type Config struct {
	Store StoreConfig

	LogDir           string
	LogLevel         string
	LogRetentionDays int

	SyncInterval time.Duration // pause between reconcile cycles
	SyncTimeout  time.Duration // deadline for one target enumeration

	OpsAddr    string // empty disables the ops HTTP server
	OpsAPIKeys []string
	OpsRPM     int
	OpsBurst   int

	SlackWebhook string
	NATSURL      string
	NATSSubject  string
	OTLPEndpoint string
	UserAgent    string
}

// source resolves a key from the environment first, then from the optional
// YAML file named by PINGER_CONFIG.
type source struct {
	file map[string]string
}

func newSource() (source, error) {
	s := source{file: map[string]string{}}
	path := strings.TrimSpace(os.Getenv("PINGER_CONFIG"))
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read PINGER_CONFIG: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return s, fmt.Errorf("parse PINGER_CONFIG: %w", err)
	}
	for k, v := range raw {
		switch vv := v.(type) {
		case []any:
			parts := make([]string, 0, len(vv))
			for _, p := range vv {
				parts = append(parts, fmt.Sprint(p))
			}
			s.file[k] = strings.Join(parts, ",")
		case nil:
		default:
			s.file[k] = fmt.Sprint(vv)
		}
	}
	return s, nil
}

func (s source) get(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	v, ok := s.file[key]
	return strings.TrimSpace(v), ok
}

func (s source) str(key, fallback string) string {
	if v, ok := s.get(key); ok && v != "" {
		return v
	}
	return fallback
}

// requiredInt parses a mandatory positive integer.
func (s source) requiredInt(key string) (int, error) {
	v, ok := s.get(key)
	if !ok || v == "" {
		return 0, fmt.Errorf("missing '%s'", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad '%s' value %q", key, v)
	}
	return n, nil
}

// optionalInt parses an optional non-negative integer.
func (s source) optionalInt(key string, fallback int) (int, error) {
	v, ok := s.get(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback, fmt.Errorf("bad '%s' value %q", key, v)
	}
	return n, nil
}

// secretFile reads a credential from the file whose path is stored in key.
func (s source) secretFile(key string, required bool) (string, error) {
	path, ok := s.get(key)
	if !ok || path == "" {
		if required {
			return "", fmt.Errorf("missing '%s'", key)
		}
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open '%s' file: %w", key, err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// LoadStore reads only the store settings.
func LoadStore() (StoreConfig, error) {
	src, err := newSource()
	if err != nil {
		return StoreConfig{}, err
	}
	return loadStore(src)
}

func loadStore(src source) (StoreConfig, error) {
	var errs error
	sc := StoreConfig{
		Driver:      strings.ToLower(src.str("STORE_DRIVER", DriverPostgres)),
		DatabaseURL: src.str("DATABASE_URL", ""),
	}

	switch sc.Driver {
	case DriverPostgres:
		if sc.DatabaseURL == "" {
			errs = multierr.Append(errs, fmt.Errorf("missing 'DATABASE_URL' for postgres store"))
		}
	case DriverSQLite:
		if sc.DatabaseURL == "" {
			sc.DatabaseURL = "pinger.db"
		}
	case DriverMemory:
	default:
		errs = multierr.Append(errs, fmt.Errorf("bad 'STORE_DRIVER' value %q", sc.Driver))
	}

	// Postgres always reads its credentials from files.
	needCreds := sc.Driver == DriverPostgres
	user, err := src.secretFile("DB_USERNAME", needCreds)
	errs = multierr.Append(errs, err)
	pass, err := src.secretFile("DB_PASSWORD", needCreds)
	errs = multierr.Append(errs, err)
	sc.Username, sc.Password = user, pass

	return sc, errs
}

// Load builds the process configuration. Every problem found is reported in
// the returned error; callers treat any error as fatal.
func Load() (Config, error) {
	src, err := newSource()
	if err != nil {
		return Config{}, err
	}

	var errs error
	store, err := loadStore(src)
	errs = multierr.Append(errs, err)

	cfg := Config{
		Store:        store,
		LogDir:       src.str("LOG_DIR", "logs"),
		LogLevel:     strings.ToLower(src.str("LOG_LEVEL", "info")),
		OpsAddr:      src.str("OPS_ADDR", ""),
		OpsAPIKeys:   splitCSV(src.str("OPS_API_KEYS", "")),
		SlackWebhook: src.str("SLACK_WEBHOOK_URL", ""),
		NATSURL:      src.str("NATS_URL", ""),
		NATSSubject:  src.str("NATS_SUBJECT", "pinger.target.state"),
		OTLPEndpoint: src.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		UserAgent:    src.str("HTTP_USER_AGENT", "uptimepinger/1.0"),
	}

	retention, err := src.requiredInt("LOG_RETENTION")
	errs = multierr.Append(errs, err)
	cfg.LogRetentionDays = retention

	syncSec, err := src.requiredInt("PINGER_DB_SYNC_INTERVAL")
	errs = multierr.Append(errs, err)
	cfg.SyncInterval = time.Duration(syncSec) * time.Second

	timeoutSec, err := src.optionalInt("PINGER_DB_SYNC_TIMEOUT", 30)
	errs = multierr.Append(errs, err)
	if timeoutSec == 0 {
		timeoutSec = 30
	}
	cfg.SyncTimeout = time.Duration(timeoutSec) * time.Second

	cfg.OpsRPM, err = src.optionalInt("OPS_RPM", 120)
	errs = multierr.Append(errs, err)
	cfg.OpsBurst, err = src.optionalInt("OPS_BURST", 60)
	errs = multierr.Append(errs, err)

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("bad 'LOG_LEVEL' value %q", cfg.LogLevel))
	}

	return cfg, errs
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
