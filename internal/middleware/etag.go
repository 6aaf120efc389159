package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagConfig defines the configuration for ETag middleware
type ETagConfig struct {
	// Weak marks tags as weak validators (W/"...")
	Weak bool

	// SkipPaths are path prefixes that get no ETag
	SkipPaths []string
}

// DefaultETagConfig returns the default configuration
func DefaultETagConfig() ETagConfig {
	return ETagConfig{
		Weak:      true,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// ETag tags successful GET and HEAD responses with a hash of the body and
// answers a matching If-None-Match with 304. Asset lists only change after a
// build or when the dev server starts or stops, so the CMS can revalidate
// them cheaply. Responses also get "Cache-Control: no-cache" so clients never
// reuse them without revalidating.
func ETag(config ETagConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
			return c.Next()
		}

		path := c.Path()
		for _, skipPath := range config.SkipPaths {
			if strings.HasPrefix(path, skipPath) {
				return c.Next()
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}

		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}

		etag := generateETag(body, config.Weak)
		c.Set(fiber.HeaderETag, etag)
		c.Set(fiber.HeaderCacheControl, "no-cache")

		if ifNoneMatch := c.Get(fiber.HeaderIfNoneMatch); ifNoneMatch != "" && etagMatches(etag, ifNoneMatch) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

// generateETag hashes body, keeping the first 16 bytes of the digest
func generateETag(body []byte, weak bool) string {
	hash := sha256.Sum256(body)
	hashStr := hex.EncodeToString(hash[:16])

	if weak {
		return `W/"` + hashStr + `"`
	}
	return `"` + hashStr + `"`
}

// etagMatches reports whether etag is listed in If-None-Match, using weak
// comparison. "*" matches anything.
func etagMatches(etag, ifNoneMatch string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate != "" && candidate == want {
			return true
		}
	}
	return false
}
