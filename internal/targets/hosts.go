package targets

import (
	"encoding/binary"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxHostsPerToken caps the addresses a single range or CIDR may produce (a /16).
	MaxHostsPerToken = 65536

	largeExpansionWarn = 4096
)

var octetRangeRegex = regexp.MustCompile(`^(\d{1,3}\.\d{1,3}\.\d{1,3}\.)(\d{1,3})-(\d{1,3})$`)

// ExpandHosts resolves host tokens into concrete hosts. Plain hostnames and IPs
// pass through untouched; "a.b.c.X-Y" and IPv4 CIDR blocks expand in address
// order. Input order is preserved.
func ExpandHosts(tokens []string) ([]string, error) {
	hosts := make([]string, 0, len(tokens))

	for _, raw := range tokens {
		token := strings.TrimSpace(raw)
		if token == "" {
			return nil, types.NewConfigError("host", raw, "empty host")
		}

		switch {
		case octetRangeRegex.MatchString(token):
			expanded, err := expandOctetRange(token)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, expanded...)

		case strings.Contains(token, "/"):
			expanded, err := expandCIDR(token)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, expanded...)

		default:
			hosts = append(hosts, token)
		}
	}

	return hosts, nil
}

func expandOctetRange(token string) ([]string, error) {
	m := octetRangeRegex.FindStringSubmatch(token)
	prefix := m[1]
	if net.ParseIP(prefix+"0") == nil {
		return nil, types.NewConfigError("host range", token, "invalid IPv4 prefix")
	}

	low, _ := strconv.Atoi(m[2])
	high, _ := strconv.Atoi(m[3])
	if low > 255 || high > 255 {
		return nil, types.NewConfigError("host range", token, "octet must be between 0 and 255")
	}
	if low > high {
		return nil, types.NewConfigError("host range", token, "low bound exceeds high bound")
	}

	hosts := make([]string, 0, high-low+1)
	for i := low; i <= high; i++ {
		hosts = append(hosts, fmt.Sprintf("%s%d", prefix, i))
	}
	return hosts, nil
}

func expandCIDR(token string) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(token)
	if err != nil {
		return nil, types.NewConfigError("host CIDR", token, "invalid CIDR notation")
	}
	if ip.To4() == nil {
		return nil, types.NewConfigError("host CIDR", token, "only IPv4 blocks can be expanded")
	}

	ones, bits := ipNet.Mask.Size()
	size := uint64(1) << uint(bits-ones)
	if size > MaxHostsPerToken {
		return nil, types.NewConfigError("host CIDR", token,
			fmt.Sprintf("block has %d addresses, limit is %d", size, MaxHostsPerToken))
	}
	if size > largeExpansionWarn {
		log.Warnf("Large host expansion: %s (%d addresses)", token, size)
	}

	base := binary.BigEndian.Uint32(ipNet.IP.To4())
	first, last := base, base+uint32(size)-1
	// Skip network and broadcast addresses except for /31 and /32
	if ones < 31 {
		first++
		last--
	}

	hosts := make([]string, 0, last-first+1)
	for n := uint64(first); n <= uint64(last); n++ {
		addr := make(net.IP, 4)
		binary.BigEndian.PutUint32(addr, uint32(n))
		hosts = append(hosts, addr.String())
	}
	return hosts, nil
}
