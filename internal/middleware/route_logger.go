package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RouteLogger logs one line per request with status, duration, trace and holder.
// Errors are rendered by the app's ErrorHandler first so the logged status is the one sent.
func RouteLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		traceID := GetTraceID(c)
		if traceID == "" {
			traceID = "no-trace-id"
		}
		status := c.Response().StatusCode()
		ev := log.Info()
		if status >= fiber.StatusInternalServerError {
			ev = log.Error()
		} else if status >= fiber.StatusBadRequest {
			ev = log.Warn()
		}
		ev = ev.Str("trace_id", traceID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Int64("ms", time.Since(start).Milliseconds())
		if holder := GetHolderID(c); holder != uuid.Nil {
			ev = ev.Str("holder_id", holder.String())
		}
		ev.Msg("request")
		return nil
	}
}
