package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanName(t *testing.T) {
	assert.Equal(t, "GET /api/tickets/:id", SpanName(http.MethodGet, "/api/tickets/:id"))
	assert.Equal(t, "GET", SpanName(http.MethodGet, "/"))
	assert.Equal(t, "POST", SpanName(http.MethodPost, ""))
}

func TestTracingMiddleware_NamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/api/tickets/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for _, id := range []string{"17", "0b7c5a52-8f0e-4d8e-9a43-0d1f4f0c1f9e"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/tickets/"+id, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "GET /api/tickets/:id", span.Name())
		assert.Contains(t, span.Attributes(), attribute.String("http.route", "/api/tickets/:id"))
	}
}
