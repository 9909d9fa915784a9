package middleware

import (
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/clover/internal/appcontext"
)

// RequestContext seeds each request's context with a request id.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.New().String()
				c.Response().Header().Set(echo.HeaderXRequestID, id)
			}

			ctx := appcontext.SetRequestID(req.Context(), id)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// Inject makes the DI container reachable from every request context, so
// handlers can resolve their dependencies with ectoinject.GetContext.
func Inject(container ectocontainer.DIContainer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, err := ectoinject.SetActiveContainer(req.Context(), container.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
