package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

func TestPostgresStore_Roundtrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn, Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	tgt := domain.Target{
		ID:       uuid.New(),
		Enabled:  true,
		Name:     "pg-test",
		Address:  "https://example.com",
		Protocol: domain.ProtocolHTTP,
		Interval: 5,
		Metadata: `{"m":"GET","mi":200,"mx":299,"i":false}`,
	}
	if err := store.InsertTarget(ctx, tgt); err != nil {
		t.Fatalf("InsertTarget: %v", err)
	}

	if err := store.UpdateTargetState(ctx, tgt.ID, domain.StateUp); err != nil {
		t.Fatalf("UpdateTargetState: %v", err)
	}

	lat, code := uint64(42), uint16(200)
	if err := store.InsertProbeRecord(ctx, domain.ProbeRecord{
		TargetID: tgt.ID, Timestamp: time.Now().UTC(), Success: true, LatencyMS: &lat, StatusCode: &code,
	}); err != nil {
		t.Fatalf("InsertProbeRecord: %v", err)
	}

	all, err := store.EnumerateTargets(ctx)
	if err != nil {
		t.Fatalf("EnumerateTargets: %v", err)
	}
	var found *domain.Target
	for i := range all {
		if all[i].ID == tgt.ID {
			found = &all[i]
		}
	}
	if found == nil {
		t.Fatalf("inserted target %s not enumerated", tgt.ID)
	}
	if found.State != domain.StateUp || found.Metadata != tgt.Metadata {
		t.Fatalf("unexpected target: %+v", found)
	}

	if err := store.SetTargetEnabled(ctx, tgt.ID, false); err != nil {
		t.Fatalf("SetTargetEnabled: %v", err)
	}
}
