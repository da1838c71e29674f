package checker

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const pingGroupRangePath = "/proc/sys/net/ipv4/ping_group_range"

// CheckICMPCapability reports whether this process can plausibly open an
// ICMP echo socket. It never blocks a scan: callers log the result and ICMP
// attempts fail individually with "permission denied" when it is wrong.
func CheckICMPCapability() error {
	if runtime.GOOS != "linux" {
		return nil
	}

	// Running as root covers raw sockets
	if os.Geteuid() == 0 {
		log.Debug("Running as root - ICMP raw sockets available")
		return nil
	}

	data, err := os.ReadFile(pingGroupRangePath)
	if err != nil {
		log.Warnf("Could not read %s: %v", pingGroupRangePath, err)
		return nil // Don't fail, just warn
	}

	low, high, err := parseGroupRange(string(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", pingGroupRangePath, err)
	}

	groups, err := os.Getgroups()
	if err != nil {
		groups = nil
	}
	groups = append(groups, os.Getgid())

	for _, g := range groups {
		if g >= low && g <= high {
			log.Debugf("Group %d is within ping_group_range %d-%d", g, low, high)
			return nil
		}
	}

	return fmt.Errorf("ICMP requires root, CAP_NET_RAW, or a group within ping_group_range (%d-%d). Run: sudo setcap cap_net_raw+ep <binary>", low, high)
}

func parseGroupRange(s string) (int, int, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected two fields, got %q", strings.TrimSpace(s))
	}
	low, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("low bound: %w", err)
	}
	high, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("high bound: %w", err)
	}
	return low, high, nil
}
