package checker

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"time"

	"github.com/ring-scanner/internal/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMPv4 = 1
	protocolICMPv6 = 58

	maxPacketSize = 1500
)

// icmpFamily carries the per address family socket and message parameters
type icmpFamily struct {
	privileged   string
	unprivileged string
	listenAddr   string
	protocol     int
	echoRequest  icmp.Type
	echoReply    icmp.Type
}

var (
	familyV4 = icmpFamily{
		privileged:   "ip4:icmp",
		unprivileged: "udp4",
		listenAddr:   "0.0.0.0",
		protocol:     protocolICMPv4,
		echoRequest:  ipv4.ICMPTypeEcho,
		echoReply:    ipv4.ICMPTypeEchoReply,
	}
	familyV6 = icmpFamily{
		privileged:   "ip6:ipv6-icmp",
		unprivileged: "udp6",
		listenAddr:   "::",
		protocol:     protocolICMPv6,
		echoRequest:  ipv6.ICMPTypeEchoRequest,
		echoReply:    ipv6.ICMPTypeEchoReply,
	}
)

func (c *Checker) probeICMP(ctx context.Context, target types.ProbeTarget, timeout time.Duration) types.ProbeAttempt {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	ip, err := resolveIP(ctx, target.Host)
	if err != nil {
		log.Debugf("ICMP probe %s: resolve failed: %v", target, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return failedAttempt(ErrTimeout)
		}
		return failedAttempt(ErrDNSResolution)
	}

	family := familyV4
	if ip.To4() == nil {
		family = familyV6
	}

	conn, privileged, err := c.openICMP(family)
	if err != nil {
		log.Debugf("ICMP probe %s: open socket failed: %v", target, err)
		return failedAttempt(classifyNetError(err, "icmp error"))
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return failedAttempt("icmp error: " + err.Error())
	}

	id, seq := c.ids.Next()
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixNano()))

	msg := icmp.Message{
		Type: family.echoRequest,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return failedAttempt("icmp error: " + err.Error())
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !privileged {
		dst = &net.UDPAddr{IP: ip}
	}

	startTime := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return failedAttempt(classifyNetError(err, "icmp error"))
	}

	rb := make([]byte, maxPacketSize)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return failedAttempt(classifyNetError(err, "icmp error"))
		}
		if !matchesPeer(peer, ip) {
			continue
		}

		reply, err := icmp.ParseMessage(family.protocol, rb[:n])
		if err != nil || reply.Type != family.echoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// Datagram ping sockets rewrite the identifier; only raw sockets can match it
		if privileged && echo.ID != id {
			continue
		}

		return successfulAttempt(time.Since(startTime))
	}
}

// openICMP prefers a raw socket and falls back to an unprivileged datagram
// ping socket. The returned flag reports whether the raw socket was used.
func (c *Checker) openICMP(family icmpFamily) (*icmp.PacketConn, bool, error) {
	conn, err := c.listen(family.privileged, family.listenAddr)
	if err == nil {
		return conn, true, nil
	}
	if !isPermissionError(err) {
		return nil, false, err
	}

	conn, err = c.listen(family.unprivileged, family.listenAddr)
	if err != nil {
		return nil, false, err
	}
	return conn, false, nil
}

func resolveIP(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}

	// Prefer IPv4 like the TCP dialer's default ordering
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	return addrs[0].IP, nil
}

func matchesPeer(peer net.Addr, ip net.IP) bool {
	switch p := peer.(type) {
	case *net.IPAddr:
		return p.IP.Equal(ip)
	case *net.UDPAddr:
		return p.IP.Equal(ip)
	default:
		return false
	}
}
