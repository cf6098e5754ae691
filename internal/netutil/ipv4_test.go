package netutil

import (
	"net"
	"testing"

	"github.com/danmuck/mycelia/internal/testutil/testlog"
)

func TestLocalIPv4IsIPv4(t *testing.T) {
	testlog.Start(t)
	got := LocalIPv4()
	ip := net.ParseIP(got)
	if ip == nil || ip.To4() == nil {
		t.Fatalf("expected ipv4 address, got %q", got)
	}
}

func TestJoinHostPort(t *testing.T) {
	testlog.Start(t)
	if got := JoinHostPort("10.0.0.1", 5500); got != "10.0.0.1:5500" {
		t.Fatalf("unexpected addr: %q", got)
	}
	if got := JoinHostPort("::1", 80); got != "[::1]:80" {
		t.Fatalf("unexpected ipv6 addr: %q", got)
	}
}
