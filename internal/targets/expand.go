package targets

import (
	"fmt"

	"github.com/ring-scanner/internal/types"
)

// MaxTargets caps the probe targets a single cycle may expand to.
const MaxTargets = 1 << 20

// Expand builds the ordered probe target list for one cycle: hosts in input
// order, each host's TCP targets in port specification order, then one ICMP
// target when icmpEnabled. Duplicates are not removed.
func Expand(hosts []string, portSpec string, icmpEnabled bool) ([]types.ProbeTarget, error) {
	if len(hosts) == 0 {
		return nil, types.NewConfigError("hosts", "", "at least one host is required")
	}

	expandedHosts, err := ExpandHosts(hosts)
	if err != nil {
		return nil, err
	}

	ports, err := ParsePorts(portSpec)
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 && !icmpEnabled {
		return nil, types.NewConfigError("ports", portSpec, "at least one port is required unless ICMP ping is enabled")
	}

	perHost := len(ports)
	if icmpEnabled {
		perHost++
	}
	if total := int64(len(expandedHosts)) * int64(perHost); total > MaxTargets {
		return nil, types.NewConfigError("targets", fmt.Sprintf("%d hosts x %d probes", len(expandedHosts), perHost),
			fmt.Sprintf("expands to %d targets, limit is %d", total, MaxTargets))
	}
	out := make([]types.ProbeTarget, 0, len(expandedHosts)*perHost)

	for _, host := range expandedHosts {
		for _, port := range ports {
			out = append(out, types.ProbeTarget{
				Host:     host,
				Port:     port,
				Protocol: types.ProtocolTCP,
			})
		}
		if icmpEnabled {
			out = append(out, types.ProbeTarget{
				Host:     host,
				Protocol: types.ProtocolICMP,
			})
		}
	}

	return out, nil
}
