package targets

import (
	"strconv"
	"strings"

	"github.com/ring-scanner/internal/types"
)

// ParsePorts expands a comma-separated port specification such as
// "80,443,8000-8100" into individual ports. Order follows the specification
// and duplicates are kept. An empty specification yields no ports.
func ParsePorts(spec string) ([]uint16, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	ports := make([]uint16, 0)
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, types.NewConfigError("port specification", spec, "empty port token")
		}

		if !strings.Contains(token, "-") {
			p, err := parsePort(token)
			if err != nil {
				return nil, err
			}
			ports = append(ports, p)
			continue
		}

		bounds := strings.Split(token, "-")
		if len(bounds) != 2 {
			return nil, types.NewConfigError("port range", token, "expected low-high")
		}
		low, err := parsePort(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, err
		}
		high, err := parsePort(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, err
		}
		if low > high {
			return nil, types.NewConfigError("port range", token, "low bound exceeds high bound")
		}

		for p := int(low); p <= int(high); p++ {
			ports = append(ports, uint16(p))
		}
	}

	return ports, nil
}

func parsePort(token string) (uint16, error) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, types.NewConfigError("port", token, "not a number")
	}
	if n < 1 || n > 65535 {
		return 0, types.NewConfigError("port", token, "must be between 1 and 65535")
	}
	return uint16(n), nil
}
