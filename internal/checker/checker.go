package checker

import (
	"context"
	"math"
	"net"
	"time"

	"github.com/ring-scanner/internal/types"
	"golang.org/x/net/icmp"
)

// Prober executes exactly one probe attempt against one target. It never
// retries and never returns an error: failures are recorded on the attempt.
type Prober interface {
	Probe(ctx context.Context, target types.ProbeTarget, timeout time.Duration) types.ProbeAttempt
}

// listenFunc opens an ICMP endpoint; swapped in tests.
type listenFunc func(network, address string) (*icmp.PacketConn, error)

type Checker struct {
	dialer *net.Dialer
	ids    *IDSource
	listen listenFunc
}

var _ Prober = (*Checker)(nil)

// NewChecker creates a Checker. The identifier source is shared by every ICMP
// attempt the checker runs and must not be nil.
func NewChecker(ids *IDSource) *Checker {
	return &Checker{
		dialer: &net.Dialer{},
		ids:    ids,
		listen: icmp.ListenPacket,
	}
}

// Probe dispatches on the target's protocol
func (c *Checker) Probe(ctx context.Context, target types.ProbeTarget, timeout time.Duration) types.ProbeAttempt {
	switch target.Protocol {
	case types.ProtocolTCP:
		return c.probeTCP(ctx, target, timeout)
	case types.ProtocolICMP:
		return c.probeICMP(ctx, target, timeout)
	default:
		return failedAttempt("unsupported protocol: " + string(target.Protocol))
	}
}

func failedAttempt(reason string) types.ProbeAttempt {
	return types.ProbeAttempt{Succeeded: false, Error: reason}
}

func successfulAttempt(latency time.Duration) types.ProbeAttempt {
	ms := float64(latency.Microseconds()) / 1000.0
	return types.ProbeAttempt{Succeeded: true, LatencyMs: math.Max(ms, 0)}
}
