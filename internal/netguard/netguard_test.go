package netguard

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPublic(t *testing.T) {
	tests := []struct {
		addr   string
		public bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1:248:1893:25c8:1946", true},
		{"127.0.0.1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"100.100.100.200", false},
		{"0.0.0.0", false},
		{"224.0.0.1", false},
		{"::1", false},
		{"fd00::1", false},
		{"fe80::1", false},
		{"::ffff:127.0.0.1", false},
		{"::ffff:10.0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.public, IsPublic(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestPublicHost(t *testing.T) {
	assert.True(t, PublicHost("example.com"))
	assert.True(t, PublicHost("93.184.216.34"))
	assert.False(t, PublicHost("localhost"))
	assert.False(t, PublicHost("LOCALHOST."))
	assert.False(t, PublicHost("api.localhost"))
	assert.False(t, PublicHost("127.0.0.1"))
	assert.False(t, PublicHost("[::1]"))
	assert.False(t, PublicHost("169.254.169.254"))
	assert.False(t, PublicHost(""))
}

func TestControl(t *testing.T) {
	require.NoError(t, Control("tcp4", "93.184.216.34:443", nil))

	err := Control("tcp4", "127.0.0.1:80", nil)
	assert.ErrorIs(t, err, ErrBlockedAddress)

	err = Control("tcp6", "[fe80::1]:80", nil)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}
