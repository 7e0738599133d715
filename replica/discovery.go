package replica

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"collabtext/core"
	"github.com/grandcat/zeroconf"
)

// ErrNoRelay is returned when discovery times out without finding a relay.
var ErrNoRelay = errors.New("no relay found on the local network")

// Discover browses mDNS for service and returns the websocket URL of the first
// relay found for room.
func Discover(ctx context.Context, service, room string, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("initialize mDNS resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return "", fmt.Errorf("browse %s: %w", service, err)
	}
	for {
		select {
		case <-ctx.Done():
			return "", ErrNoRelay
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoRelay
			}
			if u := relayURL(entry, room); u != "" {
				core.LogInfo("Discovery", "Found relay ", entry.Instance, " at ", u)
				return u, nil
			}
		}
	}
}

// relayURL builds ws://host:port<path>/<room> from a service entry. The path
// comes from the "path" TXT record and defaults to /ws.
func relayURL(entry *zeroconf.ServiceEntry, room string) string {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return ""
	}
	path := "/ws"
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			path = v
		}
	}
	host := net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
	return "ws://" + host + strings.TrimSuffix(path, "/") + "/" + url.PathEscape(room)
}
