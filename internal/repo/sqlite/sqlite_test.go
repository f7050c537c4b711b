package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "pinger.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func httpTarget() domain.Target {
	return domain.Target{
		ID:       uuid.New(),
		Enabled:  true,
		Name:     "example",
		Address:  "https://example.com",
		Protocol: domain.ProtocolHTTP,
		Interval: 5,
		Metadata: `{"m":"GET","mi":200,"mx":299,"i":false}`,
	}
}

func TestSQLiteStore_InsertEnumerateUpdate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	tgt := httpTarget()
	require.NoError(t, s.InsertTarget(ctx, tgt))

	all, err := s.EnumerateTargets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, tgt, all[0])

	require.NoError(t, s.UpdateTargetState(ctx, tgt.ID, domain.StateTimeout))
	require.NoError(t, s.SetTargetEnabled(ctx, tgt.ID, false))

	all, err = s.EnumerateTargets(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.StateTimeout, all[0].State)
	require.False(t, all[0].Enabled)
}

func TestSQLiteStore_SkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	good := httpTarget()
	require.NoError(t, s.InsertTarget(ctx, good))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, enabled, name, address, protocol, interval_seconds, state, metadata, created_at, updated_at)
		 VALUES ('not-a-uuid', 1, 'bad', 'https://bad', 'HTTP', 5, 0, '{}', '', '')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO targets (id, enabled, name, address, protocol, interval_seconds, state, metadata, created_at, updated_at)
		 VALUES (?, 1, 'bad-state', 'https://bad', 'HTTP', 5, 9, '{}', '', '')`, uuid.NewString())
	require.NoError(t, err)

	all, err := s.EnumerateTargets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, good.ID, all[0].ID)
}

func TestSQLiteStore_ProbeRecords(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	tgt := httpTarget()
	require.NoError(t, s.InsertTarget(ctx, tgt))

	lat, code := uint64(31), uint16(200)
	require.NoError(t, s.InsertProbeRecord(ctx, domain.ProbeRecord{
		TargetID: tgt.ID, Timestamp: time.Now(), Success: true, LatencyMS: &lat, StatusCode: &code,
	}))
	require.NoError(t, s.InsertProbeRecord(ctx, domain.ProbeRecord{
		TargetID: tgt.ID, Timestamp: time.Now(), Success: false,
	}))

	n, err := s.ProbeCount(ctx, tgt.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSQLiteStore_SetEnabledMissing(t *testing.T) {
	s := openStore(t)
	require.Error(t, s.SetTargetEnabled(context.Background(), uuid.New(), true))
}
