package vpnkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p := Parse("vpn://uuid@host:443?params#AmegaVPN-vpn-germany-01")
	require.NotNil(t, p.Identifier)
	require.NotNil(t, p.ID)
	assert.Equal(t, "vpn-germany-01", *p.Identifier)
	assert.Equal(t, "uuid", *p.ID)
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		desc string
		key  string
		want *string
	}{
		{"no hash", "vless://uuid@host:443?type=tcp", nil},
		{"no prefix", "vless://uuid@host#custom-name", ptr("custom-name")},
		{"last hash wins", "vless://u@h#first#AmegaVPN-second", ptr("second")},
		{"empty tail", "vless://u@h#", nil},
		{"empty string", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, Identifier(tt.key))
		})
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		desc string
		key  string
		want *string
	}{
		{"regular", "vless://abc-123@host:443", ptr("abc-123")},
		{"no scheme", "abc@host", nil},
		{"no at", "vless://host:443#AmegaVPN-vpn-france-01", nil},
		{"empty id", "vless://@host", nil},
		{"first scheme separator", "a://b@c://d@e", ptr("b")},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientID(tt.key))
		})
	}
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "France", Location("vless://id@h#AmegaVPN-vpn-france-02"))
	assert.Equal(t, "Germany", Location("vless://id@h#AmegaVPN-vpn-GERMANY-01"))
	assert.Equal(t, "Bulgaria", Location("vless://id@h#AmegaVPN-vpn-bulgary"))
	assert.Equal(t, UnknownLocation, Location("vless://id@h#AmegaVPN-vpn-mars-01"))
	assert.Equal(t, UnknownLocation, Location("vless://id@h#other"))
	assert.Equal(t, UnknownLocation, Location(""))
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate("vless://id@host:443?x=y#AmegaVPN-vpn-austria-01"))
	assert.False(t, Validate(""))
	assert.False(t, Validate("not a key"))
	assert.False(t, Validate("plain-token"))
}

func ptr(s string) *string { return &s }
