package gateway

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mathfe/grader/apigateway"

// headerCarrier exposes fiber request and response headers to propagators.
type headerCarrier struct{ c *fiber.Ctx }

var _ propagation.TextMapCarrier = headerCarrier{}

func (h headerCarrier) Get(key string) string { return h.c.Get(key) }

func (h headerCarrier) Set(key, value string) { h.c.Set(key, value) }

func (h headerCarrier) Keys() []string {
	var keys []string
	h.c.Request().Header.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

// Tracing opens a server span per request on the global tracer provider,
// continuing any incoming trace context. The span carries the request id and,
// once RequireSession ran, the session id. With tracing off the provider is a
// no-op.
func Tracing() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// spans outlive the request, fiber strings do not
		method, path := utils.CopyString(c.Method()), utils.CopyString(c.Path())
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), headerCarrier{c})
		ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(method),
				semconv.URLPath(path),
				attribute.String("grader.request_id", RequestIDFromCtx(c)),
			))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
			span.RecordError(err)
		}
		if r := c.Route(); r != nil && r.Path != "" {
			span.SetName(method + " " + r.Path)
			span.SetAttributes(semconv.HTTPRoute(r.Path))
		}
		if sid := SessionIDFromCtx(c); sid != "" {
			span.SetAttributes(attribute.String("grader.session_id", sid))
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "")
		}
		return err
	}
}
