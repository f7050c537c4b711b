package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store is a single-file store for one-node deployments. Writes from all
// workers are serialized over one connection.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (creating if needed) the database file at path and migrates it.
func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id               TEXT PRIMARY KEY,
	enabled          INTEGER NOT NULL DEFAULT 1,
	name             TEXT    NOT NULL,
	address          TEXT    NOT NULL,
	protocol         TEXT    NOT NULL,
	interval_seconds INTEGER NOT NULL,
	state            INTEGER NOT NULL DEFAULT 0,
	metadata         TEXT    NOT NULL DEFAULT '{}',
	created_at       TEXT    NOT NULL,
	updated_at       TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS probes (
	target_id   TEXT    NOT NULL,
	probed_at   TEXT    NOT NULL,
	success     INTEGER NOT NULL,
	latency_ms  INTEGER NULL,
	status_code INTEGER NULL
);
CREATE INDEX IF NOT EXISTS idx_probes_target_probed_at ON probes (target_id, probed_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// ---- Gateway ----

func (s *Store) EnumerateTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, enabled, name, address, protocol, interval_seconds, state, metadata FROM targets`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			rawID    string
			t        domain.Target
			protocol string
			state    int16
		)
		if err := rows.Scan(&rawID, &t.Enabled, &t.Name, &t.Address, &protocol, &t.Interval, &state, &t.Metadata); err != nil {
			s.log.Error("target_row_skipped", zap.Error(fmt.Errorf("scan target: %w", err)))
			continue
		}
		if t.ID, err = uuid.Parse(rawID); err != nil {
			s.log.Error("target_row_skipped", zap.String("target_id", rawID), zap.Error(err))
			continue
		}
		if t.State, err = repo.DecodeState(state); err != nil {
			s.log.Error("target_row_skipped", zap.String("target_id", rawID), zap.Error(err))
			continue
		}
		t.Protocol = domain.Protocol(protocol)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateTargetState(ctx context.Context, id domain.TargetID, state domain.State) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE targets SET state = ?, updated_at = ? WHERE id = ?`,
		repo.EncodeState(state), now(), id.String())
	if err != nil {
		return fmt.Errorf("update target state: %w", err)
	}
	return nil
}

func (s *Store) InsertProbeRecord(ctx context.Context, rec domain.ProbeRecord) error {
	var latency, status sql.NullInt64
	if rec.LatencyMS != nil {
		latency = sql.NullInt64{Int64: int64(*rec.LatencyMS), Valid: true}
	}
	if rec.StatusCode != nil {
		status = sql.NullInt64{Int64: int64(*rec.StatusCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO probes (target_id, probed_at, success, latency_ms, status_code) VALUES (?, ?, ?, ?, ?)`,
		rec.TargetID.String(), rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Success, latency, status)
	if err != nil {
		return fmt.Errorf("insert probe: %w", err)
	}
	return nil
}

// ---- Admin ----

func (s *Store) InsertTarget(ctx context.Context, t domain.Target) error {
	ts := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, enabled, name, address, protocol, interval_seconds, state, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Enabled, t.Name, t.Address, string(t.Protocol), t.Interval, repo.EncodeState(t.State), t.Metadata, ts, ts)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) SetTargetEnabled(ctx context.Context, id domain.TargetID, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET enabled = ?, updated_at = ? WHERE id = ?`, enabled, now(), id.String())
	if err != nil {
		return fmt.Errorf("set target enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set target enabled %s: not found", id)
	}
	return nil
}

// ProbeCount reports how many probe records exist for a target.
func (s *Store) ProbeCount(ctx context.Context, id domain.TargetID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM probes WHERE target_id = ?`, id.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count probes: %w", err)
	}
	return n, nil
}
