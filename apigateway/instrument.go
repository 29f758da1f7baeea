package gateway

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	instrumentOnce  sync.Once
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
)

func registerOrExisting[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func initInstrumentation() {
	instrumentOnce.Do(func() {
		requestsTotal = registerOrExisting(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of requests per route.",
		}, []string{"code", "method", "route"}))

		requestDuration = registerOrExisting(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grader",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency per route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}))

		responseSize = registerOrExisting(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grader",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response size per route.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}))
	})
}

// Instrumentation records request counts, latency and response sizes. The
// metrics endpoint itself is not measured.
func Instrumentation() fiber.Handler {
	initInstrumentation()
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}

		requestsTotal.WithLabelValues(strconv.Itoa(status), c.Method(), route).Inc()
		requestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		responseSize.WithLabelValues(c.Method(), route).Observe(float64(len(c.Response().Body())))
		return err
	}
}
