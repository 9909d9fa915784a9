package health

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/clover/internal/database"
)

// Register registers health routes
func Register(g *echo.Group) {
	g.GET("", GetHealth)
}

// GetHealth reports process liveness and database reachability.
func GetHealth(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, db, err := ectoinject.GetContext[database.DB](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := db.PingContext(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "database unreachable")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
