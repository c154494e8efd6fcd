package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPrivateAndPublic(t *testing.T) {
	cases := []struct {
		ip      string
		private bool
		public  bool
	}{
		{"192.168.1.10", true, false},
		{"10.0.0.1", true, false},
		{"172.16.4.4", true, false},
		{"127.0.0.1", true, false},
		{"169.254.1.1", true, false},
		{"203.0.113.5", false, true},
		{"8.8.8.8", false, true},
		{"0.0.0.0", false, false},
		{"224.0.0.251", false, false},
		{"not-an-ip", false, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.private, IsPrivate(c.ip), c.ip)
		assert.Equal(t, c.public, IsPublic(c.ip), c.ip)
	}
}

func TestIPv4FromAddr(t *testing.T) {
	assert.Equal(t, "192.168.1.2", ipv4(&net.IPNet{IP: net.ParseIP("192.168.1.2"), Mask: net.CIDRMask(24, 32)}))
	assert.Equal(t, "", ipv4(&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)}))
	assert.Equal(t, "", ipv4(&net.IPAddr{IP: net.ParseIP("fe80::1")}))
}

func TestResolvePublicPassesExplicitValue(t *testing.T) {
	ip, err := ResolvePublic("203.0.113.9", "192.168.1.2", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", ip)

	ip, err = ResolvePublic("", "192.168.1.2", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "", ip)
}
