package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

func newTarget() domain.Target {
	return domain.Target{
		ID:       uuid.New(),
		Enabled:  true,
		Name:     "example",
		Address:  "https://example.com",
		Protocol: domain.ProtocolHTTP,
		Interval: 5,
	}
}

func TestMemoryStore_InsertAndEnumerate(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, b := newTarget(), newTarget()
	if err := s.InsertTarget(ctx, a); err != nil {
		t.Fatalf("InsertTarget: %v", err)
	}
	if err := s.InsertTarget(ctx, b); err != nil {
		t.Fatalf("InsertTarget: %v", err)
	}
	if err := s.InsertTarget(ctx, a); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}

	all, err := s.EnumerateTargets(ctx)
	if err != nil {
		t.Fatalf("EnumerateTargets: %v", err)
	}
	if len(all) != 2 || all[0].ID != a.ID || all[1].ID != b.ID {
		t.Fatalf("unexpected targets: %+v", all)
	}
}

func TestMemoryStore_StateAndRecords(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt := newTarget()
	s.Put(tgt)

	if err := s.UpdateTargetState(ctx, tgt.ID, domain.StateDown); err != nil {
		t.Fatalf("UpdateTargetState: %v", err)
	}
	got, _ := s.Target(tgt.ID)
	if got.State != domain.StateDown {
		t.Fatalf("state not persisted: %v", got.State)
	}

	lat := uint64(12)
	rec := domain.ProbeRecord{TargetID: tgt.ID, Timestamp: time.Now().UTC(), Success: true, LatencyMS: &lat}
	if err := s.InsertProbeRecord(ctx, rec); err != nil {
		t.Fatalf("InsertProbeRecord: %v", err)
	}
	if recs := s.Records(tgt.ID); len(recs) != 1 || !recs[0].Success {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestMemoryStore_DisableAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	tgt := newTarget()
	s.Put(tgt)

	if err := s.SetTargetEnabled(ctx, tgt.ID, false); err != nil {
		t.Fatalf("SetTargetEnabled: %v", err)
	}
	got, _ := s.Target(tgt.ID)
	if got.Enabled {
		t.Fatalf("expected target disabled")
	}

	s.Delete(tgt.ID)
	all, _ := s.EnumerateTargets(ctx)
	if len(all) != 0 {
		t.Fatalf("expected no targets after delete, got %d", len(all))
	}
	if err := s.SetTargetEnabled(ctx, tgt.ID, true); err == nil {
		t.Fatalf("expected error for missing target")
	}
}
