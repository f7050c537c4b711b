package repo

import (
	"context"
	"fmt"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

// Ports (interfaces) implemented by every store adapter.

// TargetLister returns a full snapshot of target definitions. Rows that cannot
// be decoded are skipped by the adapter and logged; they never fail the call.
type TargetLister interface {
	EnumerateTargets(ctx context.Context) ([]domain.Target, error)
}

// Recorder persists what workers observe.
type Recorder interface {
	UpdateTargetState(ctx context.Context, id domain.TargetID, state domain.State) error
	InsertProbeRecord(ctx context.Context, rec domain.ProbeRecord) error
}

// Gateway is everything the reconciler and its workers need from a store.
type Gateway interface {
	TargetLister
	Recorder
}

// Admin manages target rows. Only operator tooling uses it; the probe runner
// never creates or deletes targets.
type Admin interface {
	InsertTarget(ctx context.Context, t domain.Target) error
	SetTargetEnabled(ctx context.Context, id domain.TargetID, enabled bool) error
}

// Store is a full adapter as opened by the stores package.
type Store interface {
	Gateway
	Admin
	Close() error
}

// EncodeState maps a domain state to its persisted small-integer form.
func EncodeState(s domain.State) int16 {
	switch s {
	case domain.StateUp:
		return 1
	case domain.StateDown:
		return 2
	case domain.StateTimeout:
		return 3
	default:
		return 0
	}
}

// DecodeState is the inverse of EncodeState; unknown values are an error so
// that a corrupt row is skipped instead of silently becoming Unknown.
func DecodeState(v int16) (domain.State, error) {
	switch v {
	case 0:
		return domain.StateUnknown, nil
	case 1:
		return domain.StateUp, nil
	case 2:
		return domain.StateDown, nil
	case 3:
		return domain.StateTimeout, nil
	default:
		return domain.StateUnknown, fmt.Errorf("invalid target state %d", v)
	}
}
