package aggregator

import (
	"math"
	"strconv"
	"time"

	"github.com/ring-scanner/internal/types"
)

// Summarize folds a target's attempts into its summary. It never fails:
// a target with no successful attempts still yields a (down) summary.
func Summarize(result types.ProbeResult) types.TargetSummary {
	target := result.Target
	summary := types.TargetSummary{
		Host:          target.Host,
		TestType:      target.Protocol,
		Attempts:      result.AttemptCount,
		ResponseTimes: make([]uint64, 0, len(result.Attempts)),
		Status:        types.StatusDown,
	}
	if target.Protocol != types.ProtocolICMP {
		port := target.Port
		summary.Port = &port
	}

	var totalLatency float64
	var lastError string
	for _, a := range result.Attempts {
		if a.Succeeded {
			summary.Successful++
			totalLatency += a.LatencyMs
			summary.ResponseTimes = append(summary.ResponseTimes, uint64(math.Round(a.LatencyMs)))
			continue
		}
		if a.Error != "" {
			lastError = a.Error
		}
	}

	if result.AttemptCount > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(result.AttemptCount)
	}

	if summary.Successful > 0 {
		avg := totalLatency / float64(summary.Successful)
		summary.AvgResponseTimeMs = &avg
		summary.Status = types.StatusUp
	} else if lastError != "" {
		summary.Error = &lastError
	}

	return summary
}

// BuildReport summarizes results in target order and stamps the report with
// now as unix seconds.
func BuildReport(results []types.ProbeResult, now time.Time) *types.ScanReport {
	report := &types.ScanReport{
		ScanTimestamp: strconv.FormatInt(now.Unix(), 10),
		Results:       make([]types.TargetSummary, 0, len(results)),
	}
	for _, r := range results {
		report.Results = append(report.Results, Summarize(r))
	}
	return report
}

// CountStatus returns how many summaries of the report are up and down
func CountStatus(report *types.ScanReport) (up, down int) {
	if report == nil {
		return 0, 0
	}
	for _, s := range report.Results {
		if s.Status == types.StatusUp {
			up++
		} else {
			down++
		}
	}
	return up, down
}
