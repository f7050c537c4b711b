package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

// entry is the reconciler's handle on one running worker.
type entry struct {
	name        string
	fingerprint uint64
	generation  uint64
	inbox       chan domain.Target
	cancel      context.CancelFunc
	done        chan struct{}
	err         error // valid once done is closed
	// poisoned is set when the worker stopped on its own. It is not restarted
	// until the target's fingerprint changes.
	poisoned bool
}

func (e *entry) exited() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// send hands t to the worker, waiting while the previous update is still
// undelivered.
func (e *entry) send(ctx context.Context, t domain.Target) error {
	select {
	case <-e.done:
		return ErrWorkerExited
	default:
	}
	select {
	case e.inbox <- t:
		return nil
	case <-e.done:
		return ErrWorkerExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

type WorkerInfo struct {
	TargetID    string `json:"target_id"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Generation  uint64 `json:"generation"`
	Alive       bool   `json:"alive"`
	Poisoned    bool   `json:"poisoned"`
	Error       string `json:"error,omitempty"`
}

// Snapshot is a copy of the registry taken at the end of a cycle.
type Snapshot struct {
	Generation uint64       `json:"generation"`
	TakenAt    time.Time    `json:"taken_at"`
	Workers    []WorkerInfo `json:"workers"`
}

func (r *Reconciler) takeSnapshot() *Snapshot {
	s := &Snapshot{
		Generation: r.generation,
		TakenAt:    time.Now().UTC(),
		Workers:    make([]WorkerInfo, 0, len(r.entries)),
	}
	for id, e := range r.entries {
		wi := WorkerInfo{
			TargetID:    id.String(),
			Name:        e.name,
			Fingerprint: fmt.Sprintf("%016x", e.fingerprint),
			Generation:  e.generation,
			Alive:       !e.exited(),
			Poisoned:    e.poisoned,
		}
		if !wi.Alive && e.err != nil {
			wi.Error = e.err.Error()
		}
		s.Workers = append(s.Workers, wi)
	}
	slices.SortFunc(s.Workers, func(a, b WorkerInfo) int {
		return strings.Compare(a.TargetID, b.TargetID)
	})
	return s
}
