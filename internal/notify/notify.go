package notify

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/uptimepinger/internal/domain"
)

// Transition is a persisted change of a target's observed state.
type Transition struct {
	Target     domain.Target
	From       domain.State
	To         domain.State
	StatusCode *uint16
	LatencyMS  *uint64
	At         time.Time
}

// Notifier is told about transitions after the new state was stored.
type Notifier interface {
	Notify(ctx context.Context, tr Transition) error
}

type Multi []Notifier

// Notify fans out to every notifier and returns all failures combined.
func (m Multi) Notify(ctx context.Context, tr Transition) error {
	var errs error
	for _, n := range m {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, n.Notify(ctx, tr))
	}
	return errs
}
