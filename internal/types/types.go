package types

import (
	"fmt"
	"net"
	"strconv"
)

// Protocol selects how a target is probed
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolICMP Protocol = "icmp"
)

// Status is the binary reachability classification of a target
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// ProbeTarget is one host+port+protocol combination. Port is zero for ICMP.
type ProbeTarget struct {
	Host     string
	Port     uint16
	Protocol Protocol
}

// Address returns the dialable address of a TCP target, or the bare host for ICMP.
func (t ProbeTarget) Address() string {
	if t.Protocol == ProtocolICMP {
		return t.Host
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

func (t ProbeTarget) String() string {
	if t.Protocol == ProtocolICMP {
		return fmt.Sprintf("%s (ICMP)", t.Host)
	}
	return t.Address()
}

// ProbeAttempt is the outcome of a single probe execution.
// LatencyMs is meaningful only when Succeeded is true.
type ProbeAttempt struct {
	Succeeded bool
	LatencyMs float64
	Error     string
}

// ProbeResult collects every attempt made against one target during a cycle.
// Attempts are kept in completion order; the slice is shorter than
// AttemptCount only when the cycle was interrupted.
type ProbeResult struct {
	Target       ProbeTarget
	Attempts     []ProbeAttempt
	AttemptCount int
}

// TargetSummary is the per-target record of a ScanReport
type TargetSummary struct {
	Host              string   `json:"host"`
	Port              *uint16  `json:"port"`
	TestType          Protocol `json:"test_type"`
	Attempts          int      `json:"attempts"`
	Successful        int      `json:"successful"`
	SuccessRate       float64  `json:"success_rate"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms"`
	ResponseTimes     []uint64 `json:"response_times"`
	Status            Status   `json:"status"`
	Error             *string  `json:"error"`
}

// Target rebuilds the probe target this summary was derived from
func (s TargetSummary) Target() ProbeTarget {
	t := ProbeTarget{Host: s.Host, Protocol: s.TestType}
	if s.Port != nil {
		t.Port = *s.Port
	}
	return t
}

// ScanReport is the immutable output of one execution cycle
type ScanReport struct {
	ScanTimestamp string          `json:"scan_timestamp"`
	Results       []TargetSummary `json:"results"`
}

// AllUp reports whether every summary in the report has status up.
// An empty report is not considered up.
func (r *ScanReport) AllUp() bool {
	if r == nil || len(r.Results) == 0 {
		return false
	}
	for _, s := range r.Results {
		if s.Status != StatusUp {
			return false
		}
	}
	return true
}
