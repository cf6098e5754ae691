package netutil

import (
	"net"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	Loopback = "127.0.0.1"

	// probeAddr is never contacted; connecting a UDP socket only selects a route.
	probeAddr = "10.255.255.255:1"
)

// LocalIPv4 returns the primary IPv4 address of this host, or Loopback when it cannot be found.
func LocalIPv4() string {
	conn, err := net.Dial("udp4", probeAddr)
	if err != nil {
		log.Warn().Err(err).Msg("netutil.LocalIPv4 probe failed, defaulting to loopback")
		return Loopback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.To4() == nil || addr.IP.IsUnspecified() {
		log.Warn().Str("local", conn.LocalAddr().String()).Msg("netutil.LocalIPv4 no ipv4 route, defaulting to loopback")
		return Loopback
	}
	return addr.IP.To4().String()
}

// JoinHostPort formats host and port for dialing.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
