package checker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ring-scanner/internal/config"
	"github.com/ring-scanner/internal/metrics"
	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const progressInterval = 5 * time.Second

// Executor fans probe attempts out across every target of a cycle and
// collects them per target.
type Executor struct {
	prober      Prober
	metrics     *metrics.Collector
	concurrency int
	limiter     *rate.Limiter
}

func NewExecutor(prober Prober, cfg config.ScanConfig, metricsCollector *metrics.Collector) *Executor {
	e := &Executor{
		prober:      prober,
		metrics:     metricsCollector,
		concurrency: cfg.Concurrency,
	}
	if cfg.RatePerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return e
}

// Run issues attemptCount independent attempts per target and blocks until
// every launched attempt has completed. Cancelling ctx stops further launches
// but never interrupts attempts already in flight, so results may be partial.
// Attempts are stored in completion order.
func (e *Executor) Run(ctx context.Context, targets []types.ProbeTarget, attemptCount int, tcpTimeout, icmpTimeout time.Duration) []types.ProbeResult {
	results := make([]types.ProbeResult, len(targets))
	for i, t := range targets {
		results[i] = types.ProbeResult{
			Target:       t,
			AttemptCount: attemptCount,
			Attempts:     make([]types.ProbeAttempt, 0, attemptCount),
		}
	}

	totalAttempts := len(targets) * attemptCount
	if totalAttempts == 0 {
		return results
	}

	log.Debugf("Starting probe cycle: %d targets, %d attempts, concurrency=%d",
		len(targets), totalAttempts, e.concurrency)
	startTime := time.Now()

	// In-flight attempts are bounded only by their own timeouts
	probeCtx := context.WithoutCancel(ctx)

	var resultsMu sync.Mutex

	// Semaphore for concurrency control; nil means unbounded
	var sem chan struct{}
	if e.concurrency > 0 {
		sem = make(chan struct{}, e.concurrency)
	}

	// Progress tracking
	var completed atomic.Int64
	progressTicker := time.NewTicker(progressInterval)
	done := make(chan struct{})
	defer progressTicker.Stop()
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-progressTicker.C:
				current := completed.Load()
				percent := float64(current) / float64(totalAttempts) * 100.0
				log.Infof("Progress: %d/%d (%.1f%%), goroutines=%d",
					current, totalAttempts, percent, runtime.NumGoroutine())
			}
		}
	}()

	var wg sync.WaitGroup
	launched := 0

launch:
	for i := range targets {
		for a := 0; a < attemptCount; a++ {
			if ctx.Err() != nil {
				break launch
			}
			if e.limiter != nil {
				if err := e.limiter.Wait(ctx); err != nil {
					break launch
				}
			}
			if sem != nil {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					break launch
				}
			}

			wg.Add(1)
			launched++

			go func(idx int) {
				defer wg.Done()
				if sem != nil {
					defer func() { <-sem }() // Release semaphore
				}

				target := targets[idx]
				timeout := tcpTimeout
				if target.Protocol == types.ProtocolICMP {
					timeout = icmpTimeout
				}

				attempt := e.prober.Probe(probeCtx, target, timeout)

				resultsMu.Lock()
				results[idx].Attempts = append(results[idx].Attempts, attempt)
				resultsMu.Unlock()

				completed.Add(1)
				e.metrics.RecordAttempt(string(target.Protocol), attempt.Succeeded, attempt.LatencyMs/1000.0)
			}(i)
		}
	}

	// Wait for every launched attempt
	wg.Wait()

	if launched < totalAttempts {
		log.Warnf("Probe cycle interrupted: launched %d of %d attempts", launched, totalAttempts)
	}

	duration := time.Since(startTime)
	log.WithFields(log.Fields{
		"targets":  len(targets),
		"attempts": launched,
		"duration": duration.Milliseconds(),
	}).Debug("Probe cycle complete")

	return results
}
