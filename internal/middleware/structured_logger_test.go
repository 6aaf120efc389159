package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, out string)
	}{
		{
			name:  "empty",
			input: "",
			check: func(t *testing.T, out string) { assert.Empty(t, out) },
		},
		{
			name:  "nothing sensitive",
			input: "libraries=myext/app&optimize=true",
			check: func(t *testing.T, out string) {
				values, err := url.ParseQuery(out)
				require.NoError(t, err)
				assert.Equal(t, "myext/app", values.Get("libraries"))
			},
		},
		{
			name:  "token redacted regardless of case",
			input: "Token=abc&libraries=a/b",
			check: func(t *testing.T, out string) {
				assert.NotContains(t, out, "abc")
				assert.Contains(t, out, "redacted")
			},
		},
		{
			name:  "unparseable",
			input: "%zz",
			check: func(t *testing.T, out string) { assert.Equal(t, "[redacted]", out) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, redactQueryString(tt.input))
		})
	}
}

func newLoggedApp(buf *bytes.Buffer, cfg StructuredLoggerConfig) *fiber.App {
	logger := zerolog.New(buf)
	cfg.Logger = &logger

	app := fiber.New()
	app.Use(StructuredLogger(cfg))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.Status(404).SendString("no") })
	app.Get("/slow", func(c *fiber.Ctx) error {
		time.Sleep(20 * time.Millisecond)
		return c.SendString("ok")
	})
	return app
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, StructuredLoggerConfig{SkipPaths: []string{"/health"}, SlowRequestThreshold: 10 * time.Millisecond})

	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "skipped path")

	req := httptest.NewRequest("GET", "/ok?libraries=a/b&secret=x", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-1")
	_, err = app.Test(req)
	require.NoError(t, err)

	entry := lastEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "/ok", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.NotContains(t, entry["query"], "secret=x")

	_, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, "warn", lastEntry(t, &buf)["level"])

	_, err = app.Test(httptest.NewRequest("GET", "/slow", nil))
	require.NoError(t, err)
	slow := lastEntry(t, &buf)
	assert.Equal(t, "warn", slow["level"])
	assert.Equal(t, true, slow["slow_request"])
}
