package audit

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/clover/internal/repositories/mergeaudit"
)

// Register registers merge audit routes
func Register(g *echo.Group) {
	g.GET("", ListAuditEntries)
	g.GET("/:group_id", GetGroupAudit)
}

// ListAuditEntries returns committed merge audit entries, newest first.
func ListAuditEntries(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	ctx, repo, err := ectoinject.GetContext[*mergeaudit.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.List(ctx, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// GetGroupAudit returns the audit entries written for one group.
func GetGroupAudit(c echo.Context) error {
	ctx := c.Request().Context()
	groupID := c.Param("group_id")

	ctx, repo, err := ectoinject.GetContext[*mergeaudit.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	entries, err := repo.ListByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no merge audit entries for group %s", groupID)
	}

	return c.JSON(http.StatusOK, entries)
}
