// Package reconcile keeps one worker running per enabled target.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimepinger/internal/domain"
	"github.com/hamed0406/uptimepinger/internal/metrics"
	"github.com/hamed0406/uptimepinger/internal/repo"
)

// ErrWorkerExited is returned when an update is sent to a worker that has
// already stopped.
var ErrWorkerExited = errors.New("worker exited")

// WorkerFunc runs the probe loop of one target until ctx ends. A non-nil
// error means the worker stopped on its own.
type WorkerFunc func(ctx context.Context, target domain.Target, inbox <-chan domain.Target) error

type Options struct {
	SyncInterval time.Duration
	SyncTimeout  time.Duration
	Tracer       trace.Tracer
}

type Reconciler struct {
	log      *zap.Logger
	lister   repo.TargetLister
	run      WorkerFunc
	tracer   trace.Tracer
	interval time.Duration
	timeout  time.Duration

	// Owned by the goroutine calling Cycle.
	generation uint64
	entries    map[domain.TargetID]*entry
	wg         sync.WaitGroup

	snapshot atomic.Pointer[Snapshot]
	ready    atomic.Bool
}

func New(log *zap.Logger, lister repo.TargetLister, run WorkerFunc, opts Options) *Reconciler {
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 10 * time.Second
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 30 * time.Second
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	r := &Reconciler{
		log:      log,
		lister:   lister,
		run:      run,
		tracer:   opts.Tracer,
		interval: opts.SyncInterval,
		timeout:  opts.SyncTimeout,
		entries:  make(map[domain.TargetID]*entry),
	}
	r.snapshot.Store(&Snapshot{Workers: []WorkerInfo{}})
	return r
}

type CycleStats struct {
	Generation uint64
	Enabled    int
	Spawned    int
	Updated    int
	Unchanged  int
	Cancelled  int
	Poisoned   int
}

// Run reconciles every SyncInterval until ctx ends, then stops all workers
// and waits for them.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.shutdown()

	for {
		stats, err := r.Cycle(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.log.Warn("reconcile_cycle_failed", zap.Uint64("generation", stats.Generation), zap.Error(err))
		} else {
			lvl := zap.DebugLevel
			if stats.Spawned+stats.Updated+stats.Cancelled > 0 {
				lvl = zap.InfoLevel
			}
			r.log.Log(lvl, "reconcile_cycle_done",
				zap.Uint64("generation", stats.Generation),
				zap.Int("enabled", stats.Enabled),
				zap.Int("spawned", stats.Spawned),
				zap.Int("updated", stats.Updated),
				zap.Int("cancelled", stats.Cancelled),
				zap.Int("poisoned", stats.Poisoned),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.interval):
		}
	}
}

// Cycle runs one reconcile pass. When the targets cannot be listed the
// registry is left exactly as it was.
func (r *Reconciler) Cycle(ctx context.Context) (CycleStats, error) {
	r.generation++
	gen := r.generation
	stats := CycleStats{Generation: gen}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconcileDuration)

	sctx, span := r.tracer.Start(ctx, "reconcile", trace.WithAttributes(attribute.Int64("reconcile.generation", int64(gen))))
	defer span.End()

	ectx, cancel := context.WithTimeout(sctx, r.timeout)
	targets, err := r.lister.EnumerateTargets(ectx)
	cancel()
	if err != nil {
		metrics.ReconcileCyclesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "enumerate failed")
		return stats, fmt.Errorf("enumerate targets: %w", err)
	}

	for _, t := range targets {
		if !t.Enabled {
			continue
		}
		stats.Enabled++
		fp := t.Fingerprint()

		e, ok := r.entries[t.ID]
		if !ok {
			r.spawn(ctx, t, fp, gen)
			stats.Spawned++
			continue
		}

		if !e.poisoned && e.exited() {
			e.poisoned = true
			r.log.Warn("worker_poisoned", zap.String("target_id", t.ID.String()), zap.Error(e.err))
		}

		switch {
		case fp == e.fingerprint:
			e.generation = gen
			stats.Unchanged++
		case e.poisoned:
			// New configuration for a stopped worker: start over.
			e.cancel()
			r.spawn(ctx, t, fp, gen)
			stats.Spawned++
		default:
			if err := e.send(ctx, t); err != nil {
				if ctx.Err() != nil {
					metrics.ReconcileCyclesTotal.WithLabelValues("cancelled").Inc()
					return stats, err
				}
				// Left as is: the sweep below removes it and the next
				// cycle starts a fresh worker.
				r.log.Warn("worker_update_failed", zap.String("target_id", t.ID.String()), zap.Error(err))
				continue
			}
			e.fingerprint = fp
			e.generation = gen
			e.name = t.Name
			stats.Updated++
			metrics.WorkerUpdatesTotal.Inc()
		}
	}

	for id, e := range r.entries {
		if e.generation == gen {
			if e.poisoned {
				stats.Poisoned++
			}
			continue
		}
		e.cancel()
		delete(r.entries, id)
		stats.Cancelled++
		metrics.WorkersCancelledTotal.Inc()
		r.log.Info("worker_cancelled", zap.String("target_id", id.String()))
	}

	span.SetAttributes(
		attribute.Int("reconcile.spawned", stats.Spawned),
		attribute.Int("reconcile.updated", stats.Updated),
		attribute.Int("reconcile.cancelled", stats.Cancelled),
	)
	metrics.ReconcileCyclesTotal.WithLabelValues("ok").Inc()
	metrics.WorkersActive.Set(float64(len(r.entries)))
	r.snapshot.Store(r.takeSnapshot())
	r.ready.Store(true)
	return stats, nil
}

func (r *Reconciler) spawn(ctx context.Context, t domain.Target, fp, gen uint64) {
	wctx, cancel := context.WithCancel(ctx)
	e := &entry{
		name:        t.Name,
		fingerprint: fp,
		generation:  gen,
		inbox:       make(chan domain.Target, 1),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	r.entries[t.ID] = e
	metrics.WorkersSpawnedTotal.Inc()
	r.log.Info("worker_spawned", zap.String("target_id", t.ID.String()), zap.Uint64("generation", gen))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(e.done)
		if err := r.run(wctx, t, e.inbox); err != nil {
			e.err = err
			metrics.WorkerExitsTotal.WithLabelValues("config_error").Inc()
			r.log.Error("worker_exited", zap.String("target_id", t.ID.String()), zap.Error(err))
		}
	}()
}

func (r *Reconciler) shutdown() {
	for id, e := range r.entries {
		e.cancel()
		delete(r.entries, id)
	}
	r.wg.Wait()
	metrics.WorkersActive.Set(0)
	r.log.Info("reconciler_stopped")
}

// Snapshot returns the registry as of the last successful cycle.
func (r *Reconciler) Snapshot() Snapshot {
	return *r.snapshot.Load()
}

// Ready reports whether at least one cycle has completed.
func (r *Reconciler) Ready() bool {
	return r.ready.Load()
}
