package checker

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
)

// Canonical attempt failure reasons
const (
	ErrTimeout            = "timeout"
	ErrConnectionRefused  = "connection refused"
	ErrConnectionReset    = "connection reset"
	ErrDNSResolution      = "dns resolution failed"
	ErrPermissionDenied   = "permission denied"
	ErrNetworkUnreachable = "network unreachable"
	ErrHostUnreachable    = "host unreachable"
)

func (c *Checker) probeTCP(ctx context.Context, target types.ProbeTarget, timeout time.Duration) types.ProbeAttempt {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		reason := classifyNetError(err, "connection error")
		log.Debugf("TCP probe %s failed: %v", target, err)
		return failedAttempt(reason)
	}
	latency := time.Since(startTime)
	conn.Close()

	return successfulAttempt(latency)
}

// classifyNetError maps a dial or socket error to a canonical reason string.
// Unrecognised errors are reported as "<fallback>: <detail>".
func classifyNetError(err error, fallback string) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrDNSResolution
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrConnectionReset
	case errors.Is(err, syscall.ENETUNREACH):
		return ErrNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return ErrHostUnreachable
	case isPermissionError(err):
		return ErrPermissionDenied
	}

	return fallback + ": " + err.Error()
}

func isPermissionError(err error) bool {
	return errors.Is(err, os.ErrPermission) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EPROTONOSUPPORT)
}
