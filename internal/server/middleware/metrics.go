package middleware

import (
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/metrics"

	"github.com/labstack/echo/v4"
)

// MetricsMiddleware records every request by method, route pattern and
// status. The route pattern keeps label cardinality bounded.
func MetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveRequest(c.Request().Method, path, status, time.Since(start))
		return err
	}
}
