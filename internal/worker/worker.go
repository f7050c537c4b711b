// Package worker runs the probe loop for a single target.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/metrics"
	"github.com/hamed0406/uptimepinger/internal/notify"
	"github.com/hamed0406/uptimepinger/internal/probe"
	"github.com/hamed0406/uptimepinger/internal/repo"
)

// ErrInvalidInterval is returned for targets whose interval is below one second.
var ErrInvalidInterval = errors.New("invalid interval")

const (
	defaultNotifyTimeout = 10 * time.Second
	notifyQueueSize      = 16
)

type Deps struct {
	Logger  *zap.Logger
	Store   repo.Recorder
	Probers probe.Registry

	// Optional.
	Notifier      notify.Notifier
	NotifyTimeout time.Duration
	Tracer        trace.Tracer
	Clock         Clock
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if d.Clock == nil {
		d.Clock = realClock{}
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = defaultNotifyTimeout
	}
	return d
}

type worker struct {
	Deps
	log     *zap.Logger
	target  domain.Target
	current domain.State
	check   probe.Check
	notes   chan notify.Transition
}

// Run probes target until ctx ends, picking up new configurations from inbox
// at the start of each iteration. It returns nil when cancelled and an error
// only when a configuration cannot be used (unknown protocol, bad metadata,
// bad interval); in that case the worker has stopped for good.
func Run(ctx context.Context, deps Deps, target domain.Target, inbox <-chan domain.Target) error {
	w := &worker{Deps: deps.withDefaults()}
	if err := w.apply(target); err != nil {
		return err
	}
	w.log.Debug("worker_started", zap.Int32("interval_s", target.Interval))
	stop := w.startNotifier(ctx)
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case next := <-inbox:
			if err := w.apply(next); err != nil {
				return err
			}
			w.log.Info("worker_reconfigured", zap.String("state", w.current.String()))
		default:
		}

		start := w.Clock.Now()
		w.iterate(ctx, start)
		if ctx.Err() != nil {
			return nil
		}

		sleep := NextSleep(w.target.IntervalDuration(), w.Clock.Now().Sub(start))
		if sleep == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-w.Clock.After(sleep):
		}
	}
}

// apply switches to a new configuration. Current state is reset to the stored
// state of the new value and the metadata is parsed again.
func (w *worker) apply(t domain.Target) error {
	if t.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, t.Interval)
	}
	prober, err := w.Probers.Lookup(t.Protocol)
	if err != nil {
		return err
	}
	check, err := prober.Prepare(t.Address, t.Metadata)
	if err != nil {
		return fmt.Errorf("prepare %s check: %w", t.Protocol, err)
	}
	w.target = t
	w.current = t.State
	w.check = check
	w.log = w.Logger.With(zap.String("target_id", t.ID.String()))
	return nil
}

func (w *worker) iterate(ctx context.Context, start time.Time) {
	t := w.target
	timer := metrics.NewTimer()

	pctx, cancel := context.WithTimeout(ctx, t.IntervalDuration())
	pctx, span := w.Tracer.Start(pctx, "probe", trace.WithAttributes(
		attribute.String("target.id", t.ID.String()),
		attribute.String("target.protocol", string(t.Protocol)),
	))
	out, err := w.runCheck(pctx)
	cancel()

	if ctx.Err() != nil {
		span.End()
		return
	}

	observed, rec := classify(t.ID, start, out, err)
	span.SetAttributes(attribute.String("probe.outcome", observed.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.log.Warn("probe_failed", zap.Error(err))
	}
	span.End()

	timer.ObserveDuration(metrics.ProbeDuration.WithLabelValues(string(t.Protocol)))
	metrics.ProbesTotal.WithLabelValues(string(t.Protocol), observed.String()).Inc()

	if observed != w.current {
		if err := w.Store.UpdateTargetState(ctx, t.ID, observed); err != nil {
			// The next iteration sees the same difference and tries again.
			metrics.StoreErrorsTotal.WithLabelValues("update_state").Inc()
			w.log.Error("state_update_failed",
				zap.String("state", observed.String()),
				zap.Error(err),
			)
			return
		}
		prev := w.current
		w.current = observed
		metrics.StateChangesTotal.WithLabelValues(observed.String()).Inc()
		w.log.Info("worker_state_changed",
			zap.String("from", prev.String()),
			zap.String("to", observed.String()),
		)
		w.notify(notify.Transition{
			Target:     t,
			From:       prev,
			To:         observed,
			StatusCode: rec.StatusCode,
			LatencyMS:  rec.LatencyMS,
			At:         rec.Timestamp,
		})
	}

	if err := w.Store.InsertProbeRecord(ctx, rec); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("insert_probe").Inc()
		w.log.Error("probe_record_failed", zap.Error(err))
	}
}

type probeResult struct {
	out probe.Outcome
	err error
}

// runCheck runs the check but gives up once ctx ends. A check that fails after
// its deadline passed, or does not return in time, counts as a Timeout.
func (w *worker) runCheck(ctx context.Context) (probe.Outcome, error) {
	done := make(chan probeResult, 1)
	check := w.check
	go func() {
		out, err := check.Probe(ctx)
		done <- probeResult{out: out, err: err}
	}()

	var res probeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		select {
		case res = <-done:
		default:
			res.err = ctx.Err()
		}
	}
	if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return probe.Timeout(), nil
	}
	return res.out, res.err
}

// classify maps one probe result to the observed state and its record. Any
// probe error counts as Down.
func classify(id domain.TargetID, at time.Time, out probe.Outcome, err error) (domain.State, domain.ProbeRecord) {
	rec := domain.ProbeRecord{TargetID: id, Timestamp: at.UTC()}
	if err != nil {
		return domain.StateDown, rec
	}
	switch out.Kind {
	case probe.KindUp, probe.KindDown:
		ms := uint64(out.Latency.Milliseconds())
		status := out.StatusCode
		rec.LatencyMS = &ms
		rec.StatusCode = &status
		rec.Success = out.Kind == probe.KindUp
		if rec.Success {
			return domain.StateUp, rec
		}
		return domain.StateDown, rec
	case probe.KindTimeout:
		return domain.StateTimeout, rec
	default:
		return domain.StateDown, rec
	}
}

// startNotifier delivers transitions one at a time, in the order they were
// observed, until the returned stop func is called. Queued transitions are
// still delivered after stop.
func (w *worker) startNotifier(ctx context.Context) (stop func()) {
	if w.Notifier == nil {
		return func() {}
	}
	w.notes = make(chan notify.Transition, notifyQueueSize)
	base := context.WithoutCancel(ctx)
	go func(notes <-chan notify.Transition) {
		for tr := range notes {
			w.deliver(base, tr)
		}
	}(w.notes)
	return func() { close(w.notes) }
}

func (w *worker) deliver(ctx context.Context, tr notify.Transition) {
	nctx, cancel := context.WithTimeout(ctx, w.NotifyTimeout)
	defer cancel()
	if err := w.Notifier.Notify(nctx, tr); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		w.Logger.Warn("notify_failed", zap.String("target_id", tr.Target.ID.String()), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
}

// notify queues tr without waiting, so a slow receiver never delays the next
// probe. When the queue is full the transition is dropped.
func (w *worker) notify(tr notify.Transition) {
	if w.notes == nil {
		return
	}
	select {
	case w.notes <- tr:
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		w.log.Warn("notify_dropped", zap.String("to", tr.To.String()))
	}
}
