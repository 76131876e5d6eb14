package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// NewServer assembles the echo instance with the policy routes mounted.
func NewServer(h *Handler, requestTimeout time.Duration) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestTimeoutMiddleware(requestTimeout))

	h.Register(e)
	return e
}

// requestTimeoutMiddleware bounds each request with a default deadline
// unless the caller already set one.
func requestTimeoutMiddleware(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if _, ok := req.Context().Deadline(); ok {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
