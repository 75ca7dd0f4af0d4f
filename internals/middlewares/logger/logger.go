package logger

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

const HeaderRequestID = "X-Request-ID"

// LoggerMiddleware assigns a request id, bounds the request with timeout
// and writes one structured line plus HTTP metrics per request.
func LoggerMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" {
			id = logging.NewRequestID()
		}
		c.Set(HeaderRequestID, id)
		c.Locals("reqid", id)

		ctx := logging.ContextWithRequestID(c.UserContext(), id)
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		c.SetUserContext(ctx)

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Render now so the logged status is the one the client sees.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}
		took := time.Since(start)
		status := c.Response().StatusCode()

		route := c.Route().Path
		metrics.RecordHTTP(c.Method(), route, status, took)

		ev := logging.Ctx(ctx).Info()
		switch {
		case status >= 500:
			ev = logging.Ctx(ctx).Error()
		case status >= 400:
			ev = logging.Ctx(ctx).Warn()
		}
		ev.Str("method", c.Method()).
			Str("path", c.OriginalURL()).
			Str("route", route).
			Int("status", status).
			Str("ip", c.IP()).
			Dur("latency", took).
			Msg("request")
		return err
	}
}
