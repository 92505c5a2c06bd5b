package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/order_stake/internal/metrics"
)

var (
	metricHTTPRequests = metrics.LazyLoadCounterVec("http_requests_total", []string{"method", "route", "status"})
	metricHTTPDuration = metrics.LazyLoadHistogramVec("http_request_duration_ms", []string{"method", "route"}, metrics.BucketHTTPReqs)
)

// HTTPMetrics records request counts and latencies labelled by route template, so
// per-account paths do not explode label cardinality.
func HTTPMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := c.Route().Path
		metricHTTPRequests().AddWithLabel(1, map[string]string{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		})
		metricHTTPDuration().ObserveWithLabels(time.Since(start).Milliseconds(), map[string]string{
			"method": c.Method(),
			"route":  route,
		})
		return err
	}
}
