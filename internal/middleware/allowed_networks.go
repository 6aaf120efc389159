package middleware

import (
	"fmt"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ParseNetworks parses CIDRs and bare IPs. A bare IP allows that address only.
func ParseNetworks(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid network %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", entry, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

// AllowNetworks restricts access to loopback and the given networks. The
// bundle state describes the site's file layout, so the API is usually only
// reachable by the CMS host. An empty list allows everyone.
//
// The connection IP is used, X-Forwarded-For and X-Real-IP are ignored.
func AllowNetworks(nets []*net.IPNet) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(nets) == 0 {
			return c.Next()
		}

		clientIP := directIP(c)
		if allowed(clientIP, nets) {
			return c.Next()
		}

		log.Warn().
			Str("ip", clientIP.String()).
			Str("path", c.Path()).
			Msg("Request from a network that is not allowed")

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied",
			"code":  fiber.StatusForbidden,
		})
	}
}

func allowed(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// directIP returns the connection IP, ignoring proxy headers
func directIP(c *fiber.Ctx) net.IP {
	ipStr := c.Context().RemoteIP().String()

	// IPv6 zone suffix, e.g. "::1%lo0"
	if idx := strings.Index(ipStr, "%"); idx != -1 {
		ipStr = ipStr[:idx]
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		ip = net.ParseIP(c.IP())
	}
	return ip
}
