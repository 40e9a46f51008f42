package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"rewrite-proxy-go/internal/metrics"
)

// MetricsConfig configures MetricsMiddlewareWithConfig.
type MetricsConfig struct {
	// Skipper excludes requests from all collectors, e.g. Prometheus scrapes.
	Skipper echomw.Skipper
	Metrics *metrics.Metrics
}

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for every inbound request.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return MetricsMiddlewareWithConfig(MetricsConfig{Metrics: m})
}

// MetricsMiddlewareWithConfig returns the metrics middleware with cfg. Paths
// are labelled with Metrics.NormalizePath, so everything under the mount
// prefix shares one series.
func MetricsMiddlewareWithConfig(cfg MetricsConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = echomw.DefaultSkipper
	}
	m := cfg.Metrics

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			labels := []string{
				metrics.NormalizeMethod(c.Request().Method),
				strconv.Itoa(statusOf(c, err)),
				m.NormalizePath(c.Request().URL.Path),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// statusOf returns the status the client will see. A returned *echo.HTTPError
// is written later by the central error handler, so its code wins over the
// not yet committed response status.
func statusOf(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}
