package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// mDNS advertisement has no ecosystem library anywhere in the retrieved
// example pack (confirmed against every go.mod in _examples/); this is
// implemented directly on stdlib net multicast-UDP primitives rather than
// adopting an unrelated dependency for one announce packet. See DESIGN.md.
const (
	mdnsGroup = "224.0.0.251:5353"
	mdnsTTL   = 120 * time.Second
)

// Advertiser periodically announces the bridge's presence and port over
// LAN multicast so companion-device nodes can discover it without a
// hardcoded address (spec §4.5 "advertised over the LAN").
type Advertiser struct {
	ServiceName string
	Port        int
}

// Run sends one announcement immediately and then every interval until ctx
// is done. It is deliberately a bare presence beacon (service name + port),
// not a full RFC 6762 responder — nodes that already hold a paired
// address/token skip discovery entirely and dial directly.
func (a *Advertiser) Run(ctx context.Context, interval time.Duration) error {
	addr, err := net.ResolveUDPAddr("udp4", mdnsGroup)
	if err != nil {
		return fmt.Errorf("mdns: resolve group addr: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("mdns: dial multicast group: %w", err)
	}
	defer conn.Close()

	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	announce := func() {
		msg := fmt.Sprintf("CLAWDIS-BRIDGE %s PORT=%d TTL=%d", a.ServiceName, a.Port, int(mdnsTTL.Seconds()))
		if _, err := conn.Write([]byte(msg)); err != nil {
			slog.Warn("mdns: announce failed", "error", err)
		}
	}

	announce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			announce()
		}
	}
}
