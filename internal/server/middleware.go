package server

import (
	"github.com/labstack/echo/v4"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/correlation"
)

// correlationMiddleware tags every request with a correlation ID, reusing the
// caller's X-Request-ID when present, and echoes it back in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = correlation.NewID()
		}

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		return next(c)
	}
}
