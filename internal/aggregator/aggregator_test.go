package aggregator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ring-scanner/internal/types"
)

func tcpTarget(port uint16) types.ProbeTarget {
	return types.ProbeTarget{Host: "example.com", Port: port, Protocol: types.ProtocolTCP}
}

func TestSummarize(t *testing.T) {
	ok := func(ms float64) types.ProbeAttempt { return types.ProbeAttempt{Succeeded: true, LatencyMs: ms} }
	fail := func(reason string) types.ProbeAttempt { return types.ProbeAttempt{Error: reason} }

	tests := []struct {
		name        string
		attempts    []types.ProbeAttempt
		count       int
		successful  int
		rate        float64
		avg         *float64
		times       []uint64
		status      types.Status
		errorString *string
	}{
		{
			name:       "all successful",
			attempts:   []types.ProbeAttempt{ok(10.4), ok(20.6), ok(30)},
			count:      3,
			successful: 3,
			rate:       1,
			avg:        floatPtr(61.0 / 3),
			times:      []uint64{10, 21, 30},
			status:     types.StatusUp,
		},
		{
			name:       "one success is up",
			attempts:   []types.ProbeAttempt{fail("timeout"), ok(5), fail("timeout")},
			count:      3,
			successful: 1,
			rate:       1.0 / 3,
			avg:        floatPtr(5),
			times:      []uint64{5},
			status:     types.StatusUp,
		},
		{
			name:        "all failed keeps last error",
			attempts:    []types.ProbeAttempt{fail("timeout"), fail("connection refused")},
			count:       2,
			rate:        0,
			times:       []uint64{},
			status:      types.StatusDown,
			errorString: strPtr("connection refused"),
		},
		{
			name:     "partial cycle",
			attempts: []types.ProbeAttempt{ok(2)},
			count:    4,
			rate:     0.25,
			avg:      floatPtr(2),
			times:    []uint64{2},
			status:   types.StatusUp,
			// one of four configured attempts completed
			successful: 1,
		},
		{
			name:   "zero attempts",
			count:  0,
			times:  []uint64{},
			status: types.StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(types.ProbeResult{Target: tcpTarget(443), Attempts: tt.attempts, AttemptCount: tt.count})

			if s.Successful != tt.successful {
				t.Fatalf("successful = %d, want %d", s.Successful, tt.successful)
			}
			if s.Successful > s.Attempts {
				t.Fatalf("successful %d exceeds attempts %d", s.Successful, s.Attempts)
			}
			if !almostEqual(s.SuccessRate, tt.rate) {
				t.Fatalf("success rate = %v, want %v", s.SuccessRate, tt.rate)
			}
			if (s.AvgResponseTimeMs == nil) != (tt.avg == nil) {
				t.Fatalf("avg presence mismatch: got %v want %v", s.AvgResponseTimeMs, tt.avg)
			}
			if tt.avg != nil && !almostEqual(*s.AvgResponseTimeMs, *tt.avg) {
				t.Fatalf("avg = %v, want %v", *s.AvgResponseTimeMs, *tt.avg)
			}
			if len(s.ResponseTimes) != len(tt.times) {
				t.Fatalf("response times = %v, want %v", s.ResponseTimes, tt.times)
			}
			for i := range tt.times {
				if s.ResponseTimes[i] != tt.times[i] {
					t.Fatalf("response times = %v, want %v", s.ResponseTimes, tt.times)
				}
			}
			if s.Status != tt.status {
				t.Fatalf("status = %s, want %s", s.Status, tt.status)
			}
			if (s.Error == nil) != (tt.errorString == nil) || (s.Error != nil && *s.Error != *tt.errorString) {
				t.Fatalf("error = %v, want %v", s.Error, tt.errorString)
			}
		})
	}
}

func TestSummarizeICMPHasNoPort(t *testing.T) {
	s := Summarize(types.ProbeResult{
		Target:       types.ProbeTarget{Host: "127.0.0.1", Protocol: types.ProtocolICMP},
		Attempts:     []types.ProbeAttempt{{Error: "permission denied"}, {Error: "permission denied"}},
		AttemptCount: 2,
	})

	if s.Port != nil {
		t.Fatalf("expected nil port for icmp, got %d", *s.Port)
	}
	if s.TestType != types.ProtocolICMP || s.Error == nil || *s.Error != "permission denied" {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestBuildReportJSON(t *testing.T) {
	results := []types.ProbeResult{
		{Target: tcpTarget(80), Attempts: []types.ProbeAttempt{{Succeeded: true, LatencyMs: 12.2}}, AttemptCount: 1},
		{Target: types.ProbeTarget{Host: "example.com", Protocol: types.ProtocolICMP}, Attempts: []types.ProbeAttempt{{Error: "timeout"}}, AttemptCount: 1},
	}

	report := BuildReport(results, time.Unix(1700000000, 0))
	if report.ScanTimestamp != "1700000000" {
		t.Fatalf("unexpected timestamp %q", report.ScanTimestamp)
	}
	if len(report.Results) != 2 || report.Results[0].TestType != types.ProtocolTCP {
		t.Fatalf("results out of order: %+v", report.Results)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entries := decoded["results"].([]any)
	icmpEntry := entries[1].(map[string]any)
	for _, key := range []string{"port", "avg_response_time_ms"} {
		if v, ok := icmpEntry[key]; !ok || v != nil {
			t.Fatalf("expected %s to be null, got %v (present=%v)", key, v, ok)
		}
	}
	if icmpEntry["error"] != "timeout" || icmpEntry["status"] != "down" {
		t.Fatalf("unexpected icmp entry %v", icmpEntry)
	}
	if times := icmpEntry["response_times"].([]any); len(times) != 0 {
		t.Fatalf("expected empty response_times, got %v", times)
	}

	up, down := CountStatus(report)
	if up != 1 || down != 1 {
		t.Fatalf("CountStatus = %d/%d, want 1/1", up, down)
	}
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func almostEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
