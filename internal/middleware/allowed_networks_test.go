package middleware

import (
	"net"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetworks(t *testing.T) {
	nets, err := ParseNetworks([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, nets, 3)

	assert.True(t, nets[0].Contains(net.ParseIP("10.1.2.3")))
	assert.True(t, nets[1].Contains(net.ParseIP("192.168.1.5")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.168.1.6")))
	assert.True(t, nets[2].Contains(net.ParseIP("2001:db8::1")))

	_, err = ParseNetworks([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseNetworks([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestAllowed(t *testing.T) {
	nets, err := ParseNetworks([]string{"172.16.0.0/12"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		ip       string
		expected bool
	}{
		{"IPv4 localhost", "127.0.0.1", true},
		{"IPv4 loopback range", "127.0.0.2", true},
		{"IPv6 localhost", "::1", true},
		{"inside network", "172.18.0.4", true},
		{"outside network", "192.168.1.1", false},
		{"public", "8.8.8.8", false},
		{"nil IP", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ip net.IP
			if tt.ip != "" {
				ip = net.ParseIP(tt.ip)
			}
			assert.Equal(t, tt.expected, allowed(ip, nets), "IP: %s", tt.ip)
		})
	}
}

func TestAllowNetworks(t *testing.T) {
	tests := []struct {
		name           string
		networks       []string
		expectedStatus int
	}{
		{"no restriction", nil, fiber.StatusOK},
		{"every address allowed", []string{"0.0.0.0/0"}, fiber.StatusOK},
		{"client outside the allowed network", []string{"10.0.0.0/8"}, fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nets, err := ParseNetworks(tt.networks)
			require.NoError(t, err)

			app := fiber.New()
			app.Use(AllowNetworks(nets))
			app.Get("/test", func(c *fiber.Ctx) error {
				return c.SendString("OK")
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("X-Forwarded-For", "10.0.0.1")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}
