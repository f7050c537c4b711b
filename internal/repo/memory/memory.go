package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps targets and probe history in process memory. It is used by
// tests and by dry runs with STORE_DRIVER=memory.
type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]domain.Target
	order   []domain.TargetID
	records []domain.ProbeRecord
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]domain.Target),
		records: make([]domain.ProbeRecord, 0, 128),
	}
}

func (m *Store) Close() error { return nil }

// ---- Admin ----

func (m *Store) InsertTarget(ctx context.Context, t domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[t.ID]; ok {
		return fmt.Errorf("insert target %s: already exists", t.ID)
	}
	m.targets[t.ID] = t
	m.order = append(m.order, t.ID)
	return nil
}

// Put inserts or replaces a target definition.
func (m *Store) Put(t domain.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	m.targets[t.ID] = t
}

// Delete removes a target definition; its history is kept.
func (m *Store) Delete(id domain.TargetID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return
	}
	delete(m.targets, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Store) SetTargetEnabled(ctx context.Context, id domain.TargetID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return fmt.Errorf("set target enabled %s: not found", id)
	}
	t.Enabled = enabled
	m.targets[id] = t
	return nil
}

// ---- Gateway ----

func (m *Store) EnumerateTargets(ctx context.Context) ([]domain.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.targets[id])
	}
	return out, nil
}

func (m *Store) UpdateTargetState(ctx context.Context, id domain.TargetID, state domain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		// Matches an UPDATE on a deleted row: nothing to change.
		return nil
	}
	t.State = state
	m.targets[id] = t
	return nil
}

func (m *Store) InsertProbeRecord(ctx context.Context, rec domain.ProbeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the probe history for one target, oldest first.
func (m *Store) Records(id domain.TargetID) []domain.ProbeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ProbeRecord
	for _, r := range m.records {
		if r.TargetID == id {
			out = append(out, r)
		}
	}
	return out
}

// Target returns the current definition of one target.
func (m *Store) Target(id domain.TargetID) (domain.Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	return t, ok
}
