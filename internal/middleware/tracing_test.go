package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	assert.True(t, cfg.Enabled)
	assert.ElementsMatch(t, []string{"/health", "/metrics"}, cfg.SkipPaths)
}

func TestTracing_Disabled(t *testing.T) {
	recorder := useRecorder(t)

	app := fiber.New()
	app.Use(Tracing(TracingConfig{Enabled: false}))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, recorder.Ended())
}

func TestTracing_RequestSpan(t *testing.T) {
	recorder := useRecorder(t)

	app := fiber.New()
	app.Use(Tracing(DefaultTracingConfig()))

	var childParent trace.SpanContext
	app.Get("/api/v1/libraries", func(c *fiber.Ctx) error {
		_, child := otel.Tracer("test").Start(c.UserContext(), "child")
		childParent = trace.SpanContextFromContext(c.UserContext())
		child.End()
		return c.SendString("ok")
	})
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/libraries?bundled=true", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	_, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2, "health checks are not traced")

	var server sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.SpanKind() == trace.SpanKindServer {
			server = s
		}
	}
	require.NotNil(t, server)
	assert.Equal(t, "GET /api/v1/libraries", server.Name())
	assert.Equal(t, codes.Ok, server.Status().Code)
	assert.Equal(t, server.SpanContext().SpanID(), childParent.SpanID(), "handlers see the request span")
}

func TestTracing_ErrorStatus(t *testing.T) {
	recorder := useRecorder(t)

	app := fiber.New()
	app.Use(Tracing(DefaultTracingConfig()))
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusNotFound, "missing") })

	_, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
