package hostaddr

import (
	"context"
	"net"
	"time"
)

const (
	// DefaultTarget is only used to pick a route; no datagram is sent.
	DefaultTarget = "8.8.8.8:80"
	Loopback      = "127.0.0.1"

	dialTimeout = 2 * time.Second
)

// Resolver finds the address other machines on the LAN can use to reach
// this host. It is only used for display.
type Resolver struct {
	Target string
}

func NewResolver() *Resolver {
	return &Resolver{Target: DefaultTarget}
}

// ResolveLANAddress returns the local address the kernel would use to reach
// the target address, or Loopback when that cannot be determined.
func (r *Resolver) ResolveLANAddress(ctx context.Context) string {
	target := r.Target
	if target == "" {
		target = DefaultTarget
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", target)
	if err != nil {
		return Loopback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return Loopback
	}
	return addr.IP.String()
}
