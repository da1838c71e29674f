package runner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ring-scanner/internal/aggregator"
	"github.com/ring-scanner/internal/checker"
	"github.com/ring-scanner/internal/config"
	"github.com/ring-scanner/internal/metrics"
	"github.com/ring-scanner/internal/output"
	"github.com/ring-scanner/internal/snapshot"
	"github.com/ring-scanner/internal/targets"
	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
)

// Runner drives scan cycles: once, or repeatedly with a pause in between
// until its context is cancelled.
type Runner struct {
	cfg      config.ScanConfig
	executor *checker.Executor
	snapshot *snapshot.Manager
	reporter output.Reporter
	metrics  *metrics.Collector

	interval time.Duration
	trigger  chan struct{}
	now      func() time.Time
}

// New creates a Runner. snap and metricsCollector may be nil.
func New(cfg config.ScanConfig, executor *checker.Executor, snap *snapshot.Manager, reporter output.Reporter, metricsCollector *metrics.Collector) *Runner {
	return &Runner{
		cfg:      cfg,
		executor: executor,
		snapshot: snap,
		reporter: reporter,
		metrics:  metricsCollector,
		interval: cfg.Interval(),
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Targets expands the configured hosts and ports
func (r *Runner) Targets() ([]types.ProbeTarget, error) {
	return targets.Expand(r.cfg.Hosts, r.cfg.Ports, r.cfg.Ping)
}

// Trigger cuts the current pause short so the next cycle starts now. It
// returns false if a trigger is already pending.
func (r *Runner) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run executes cycles until ctx is cancelled, or a single cycle when the
// configuration asks for it. Cancellation is honoured only between cycles:
// a started cycle always runs to completion and is reported. Run returns the
// last report, or an error if the targets could not be expanded.
func (r *Runner) Run(ctx context.Context) (*types.ScanReport, error) {
	var last *types.ScanReport
	cycle := 0

	for {
		if ctx.Err() != nil {
			log.Info("Scan loop stopped")
			return last, nil
		}

		cycle++
		report, err := r.RunCycle(context.WithoutCancel(ctx), cycle)
		if err != nil {
			return last, err
		}
		last = report

		if r.cfg.Once {
			return last, nil
		}

		if w, ok := r.reporter.(output.Waiter); ok {
			w.Waiting(r.interval)
		}

		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("Scan loop stopped")
			return last, nil
		case <-r.trigger:
			timer.Stop()
			log.Info("Scan triggered, starting next cycle early")
		case <-timer.C:
		}
	}
}

// RunCycle runs one expand, probe, summarize pass and emits its report
func (r *Runner) RunCycle(ctx context.Context, cycle int) (*types.ScanReport, error) {
	start := time.Now()

	probeTargets, err := r.Targets()
	if err != nil {
		return nil, fmt.Errorf("expand targets: %w", err)
	}

	log.WithFields(log.Fields{
		"cycle":   cycle,
		"targets": len(probeTargets),
	}).Debug("Starting scan cycle")

	results := r.executor.Run(ctx, probeTargets, r.cfg.Count, r.cfg.TCPTimeout(), r.cfg.ICMPTimeout())
	report := aggregator.BuildReport(results, r.now())

	up, down := aggregator.CountStatus(report)
	r.recordMetrics(report, up, down, time.Since(start))

	if r.snapshot != nil {
		r.snapshot.Update(report)
	}

	if r.reporter != nil {
		if err := r.reporter.Report(ctx, report); err != nil {
			log.Errorf("Failed to report scan results: %v", err)
		}
	}

	log.WithFields(log.Fields{
		"cycle":      cycle,
		"up":         up,
		"down":       down,
		"duration":   time.Since(start).Milliseconds(),
		"goroutines": runtime.NumGoroutine(),
	}).Debug("Scan cycle complete")

	return report, nil
}

func (r *Runner) recordMetrics(report *types.ScanReport, up, down int, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	for _, s := range report.Results {
		r.metrics.SetTarget(s.Host, s.Port, string(s.TestType), s.Status == types.StatusUp, s.SuccessRate)
	}
	r.metrics.SetTargetCounts(up, down)
	r.metrics.RecordCycle(duration.Seconds())
}
