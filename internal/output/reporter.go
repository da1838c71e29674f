package output

import (
	"context"
	"errors"
	"time"

	"github.com/ring-scanner/internal/types"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitTargetsDown = 1
	ExitConfigError = 2
)

// Reporter receives every completed scan report
type Reporter interface {
	Report(ctx context.Context, report *types.ScanReport) error
}

// Waiter is implemented by reporters that announce the pause between cycles
type Waiter interface {
	Waiting(interval time.Duration)
}

// Multi fans a report out to several reporters. Every reporter runs even when
// an earlier one fails; the first error is returned.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, report *types.ScanReport) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

func (m Multi) Waiting(interval time.Duration) {
	for _, r := range m {
		if w, ok := r.(Waiter); ok {
			w.Waiting(interval)
		}
	}
}

// ExitCode maps the last report of a run to the process exit code
func ExitCode(report *types.ScanReport) int {
	if report.AllUp() {
		return ExitOK
	}
	return ExitTargetsDown
}

// IsConfigError reports whether err should exit with ExitConfigError
func IsConfigError(err error) bool {
	var cfgErr *types.ConfigError
	return errors.As(err, &cfgErr)
}
