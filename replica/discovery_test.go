package replica

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/require"
)

func TestRelayURL(t *testing.T) {
	entry := zeroconf.NewServiceEntry("relay", "_collabtext-relay._tcp", "local.")
	entry.Port = 8081
	require.Empty(t, relayURL(entry, "doc"))

	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.7")}
	require.Equal(t, "ws://192.168.1.7:8081/ws/doc", relayURL(entry, "doc"))

	entry.Text = []string{"txtv=0", "path=/relay/"}
	require.Equal(t, "ws://192.168.1.7:8081/relay/my%20doc", relayURL(entry, "my doc"))

	entry.AddrIPv4 = nil
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	entry.Text = nil
	require.Equal(t, "ws://[fe80::1]:8081/ws/doc", relayURL(entry, "doc"))
}
