// Package runner drives a simulated factory on a fixed interval and hands every record
// to a set of sinks.
package runner

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	simulator "github.com/talaria-02/smart-factory-pipeline"
	"github.com/talaria-02/smart-factory-pipeline/anomaly"
)

// Sink receives every record produced by the factory. Publish is called from the runner
// goroutine only, one record at a time.
type Sink interface {
	Publish(ctx context.Context, rec simulator.Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec simulator.Record) error

func (f SinkFunc) Publish(ctx context.Context, rec simulator.Record) error {
	return f(ctx, rec)
}

// Runner is the simulation clock.
type Runner struct {
	factory   *simulator.Factory
	interval  time.Duration
	logger    *zap.Logger
	sinks     []Sink
	maxCycles int

	failures atomic.Int64
}

// New returns a runner ticking factory every interval. A nil logger discards logs.
func New(factory *simulator.Factory, interval time.Duration, logger *zap.Logger, sinks ...Sink) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		factory:  factory,
		interval: interval,
		logger:   logger,
		sinks:    sinks,
	}
}

// SetMaxCycles stops Run after n cycles. n <= 0 runs until the context is cancelled.
func (r *Runner) SetMaxCycles(n int) {
	r.maxCycles = n
}

// Failures returns the number of failed sink publishes so far.
func (r *Runner) Failures() int64 {
	return r.failures.Load()
}

// Run ticks the factory once immediately and then every interval until ctx is done or
// the cycle limit is reached. Sink errors are logged and counted; they never stop the
// loop. Returns the number of completed cycles.
func (r *Runner) Run(ctx context.Context) int {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	cycles := 0
	for {
		if !r.cycle(ctx) {
			return cycles
		}
		cycles++
		if r.maxCycles > 0 && cycles >= r.maxCycles {
			return cycles
		}

		select {
		case <-ctx.Done():
			return cycles
		case <-ticker.C:
		}
	}
}

// cycle runs one factory tick and dispatches its records. It returns false when the
// tick was abandoned because ctx is done.
func (r *Runner) cycle(ctx context.Context) bool {
	records, err := r.factory.Tick(ctx)
	if err != nil {
		return false
	}

	for _, rec := range records {
		for _, sink := range r.sinks {
			if err := sink.Publish(ctx, rec); err != nil {
				r.failures.Add(1)
				r.logger.Warn("sink publish failed",
					zap.String("machine_id", rec.MachineID),
					zap.String("sink", sinkName(sink)),
					zap.Error(err))
			}
		}
	}
	r.logger.Debug("cycle complete", zap.Int("records", len(records)))
	return true
}

type named interface {
	Name() string
}

func sinkName(s Sink) string {
	if n, ok := s.(named); ok {
		return n.Name()
	}
	return "sink"
}

// EpisodeLogger returns an inject hook that logs every anomaly episode at info level.
func EpisodeLogger(logger *zap.Logger) func(anomaly.Episode) {
	return func(ep anomaly.Episode) {
		logger.Info("anomaly injected",
			zap.String("episode_id", ep.ID.String()),
			zap.String("machine_id", ep.MachineID),
			zap.String("sensor", ep.Sensor),
			zap.Int("duration", ep.Duration),
			zap.Float64("severity", ep.Severity))
	}
}

// ChainHooks returns an inject hook calling each of hooks in order. Nil hooks are skipped.
func ChainHooks(hooks ...func(anomaly.Episode)) func(anomaly.Episode) {
	return func(ep anomaly.Episode) {
		for _, h := range hooks {
			if h != nil {
				h(ep)
			}
		}
	}
}
