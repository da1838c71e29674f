package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records probe, cycle, persistence and API metrics. A nil
// *Collector is valid and records nothing.
type Collector struct {
	// Probe attempt metrics
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	// Per-target state from the latest report
	targetUp          *prometheus.GaugeVec
	targetSuccessRate *prometheus.GaugeVec
	targetsUp         prometheus.Gauge
	targetsDown       prometheus.Gauge

	// Cycle metrics
	cyclesTotal   prometheus.Counter
	cycleDuration prometheus.Histogram

	// Persistence / publishing
	persistTotal *prometheus.CounterVec
	publishTotal *prometheus.CounterVec

	// API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewCollector registers every metric with reg under namespace
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_attempts_total",
				Help:      "Total number of probe attempts",
			},
			[]string{"protocol", "result"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_latency_seconds",
				Help:      "Latency of successful probe attempts in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"protocol"},
		),
		targetUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "target_up",
				Help:      "Whether the target was up in the latest report (1) or down (0)",
			},
			[]string{"host", "port", "protocol"},
		),
		targetSuccessRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "target_success_rate",
				Help:      "Success rate of the target in the latest report",
			},
			[]string{"host", "port", "protocol"},
		),
		targetsUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "targets_up",
				Help:      "Number of targets up in the latest report",
			},
		),
		targetsDown: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "targets_down",
				Help:      "Number of targets down in the latest report",
			},
		),
		cyclesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of completed scan cycles",
			},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Scan cycle duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		persistTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_persist_total",
				Help:      "Report persistence attempts",
			},
			[]string{"result"},
		),
		publishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_publish_total",
				Help:      "Report publish attempts",
			},
			[]string{"sink", "result"},
		),
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return c
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (c *Collector) RecordAttempt(protocol string, succeeded bool, latencySeconds float64) {
	if c == nil {
		return
	}
	c.attemptsTotal.WithLabelValues(protocol, resultLabel(succeeded)).Inc()
	if succeeded {
		c.attemptDuration.WithLabelValues(protocol).Observe(latencySeconds)
	}
}

func (c *Collector) SetTarget(host string, port *uint16, protocol string, up bool, successRate float64) {
	if c == nil {
		return
	}
	portLabel := ""
	if port != nil {
		portLabel = strconv.Itoa(int(*port))
	}
	upValue := 0.0
	if up {
		upValue = 1.0
	}
	c.targetUp.WithLabelValues(host, portLabel, protocol).Set(upValue)
	c.targetSuccessRate.WithLabelValues(host, portLabel, protocol).Set(successRate)
}

func (c *Collector) SetTargetCounts(up, down int) {
	if c == nil {
		return
	}
	c.targetsUp.Set(float64(up))
	c.targetsDown.Set(float64(down))
}

func (c *Collector) RecordCycle(seconds float64) {
	if c == nil {
		return
	}
	c.cyclesTotal.Inc()
	c.cycleDuration.Observe(seconds)
}

func (c *Collector) RecordPersist(ok bool) {
	if c == nil {
		return
	}
	c.persistTotal.WithLabelValues(resultLabel(ok)).Inc()
}

func (c *Collector) RecordPublish(sink string, ok bool) {
	if c == nil {
		return
	}
	c.publishTotal.WithLabelValues(sink, resultLabel(ok)).Inc()
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	if c == nil {
		return
	}
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
