package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

var _ repo.Store = (*Store)(nil)

// ErrInvalidDSN marks connection strings that no retry can fix.
var ErrInvalidDSN = errors.New("invalid postgres dsn")

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Options carries credentials that are kept out of the DSN.
type Options struct {
	User     string
	Password string
	MaxConns int32
}

func New(ctx context.Context, dsn string, opts Options, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	if opts.User != "" {
		cfg.ConnConfig.User = opts.User
	}
	if opts.Password != "" {
		cfg.ConnConfig.Password = opts.Password
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ---- Gateway ----

func (s *Store) EnumerateTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, enabled, name, address, protocol, interval_seconds, state, metadata
		   FROM targets`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			t        domain.Target
			protocol string
			state    int16
		)
		if err := rows.Scan(&t.ID, &t.Enabled, &t.Name, &t.Address, &protocol, &t.Interval, &state, &t.Metadata); err != nil {
			s.log.Error("target_row_skipped", zap.Error(fmt.Errorf("scan target: %w", err)))
			continue
		}
		t.Protocol = domain.Protocol(protocol)
		if t.State, err = repo.DecodeState(state); err != nil {
			s.log.Error("target_row_skipped", zap.String("target_id", t.ID.String()), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateTargetState(ctx context.Context, id domain.TargetID, state domain.State) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE targets SET state = $1, updated_at = now() WHERE id = $2`,
		repo.EncodeState(state), id)
	if err != nil {
		return fmt.Errorf("update target state: %w", err)
	}
	return nil
}

func (s *Store) InsertProbeRecord(ctx context.Context, rec domain.ProbeRecord) error {
	var (
		latency *int64
		status  *int16
	)
	if rec.LatencyMS != nil {
		v := int64(*rec.LatencyMS)
		latency = &v
	}
	if rec.StatusCode != nil {
		v := int16(*rec.StatusCode)
		status = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO probes (target_id, probed_at, success, latency_ms, status_code)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.TargetID, rec.Timestamp, rec.Success, latency, status)
	if err != nil {
		return fmt.Errorf("insert probe: %w", err)
	}
	return nil
}

// ---- Admin ----

func (s *Store) InsertTarget(ctx context.Context, t domain.Target) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (id, enabled, name, address, protocol, interval_seconds, state, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Enabled, t.Name, t.Address, string(t.Protocol), t.Interval, repo.EncodeState(t.State), t.Metadata)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) SetTargetEnabled(ctx context.Context, id domain.TargetID, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET enabled = $1, updated_at = now() WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("set target enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set target enabled %s: not found", id)
	}
	return nil
}
