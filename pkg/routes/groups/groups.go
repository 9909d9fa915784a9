package groups

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/harborcrm/clover/pkg/engine"
	"github.com/harborcrm/clover/pkg/models"
)

// Register registers duplicate group routes
func Register(g *echo.Group) {
	g.GET("", ListGroups)
	g.GET("/:id", GetGroup)
}

// ListGroups runs a live detection pass and returns the scored groups in the
// review row shape. Optional filters: confidence, limit.
func ListGroups(c echo.Context) error {
	ctx := c.Request().Context()

	confidence := c.QueryParam("confidence")
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	ctx, eng, err := ectoinject.GetContext[*engine.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	groups, err := eng.Detect(ctx, engine.Scope{Limit: limit})
	if err != nil {
		return err
	}

	reports := make([]models.GroupReport, 0, len(groups))
	for _, g := range groups {
		if confidence != "" && string(g.Confidence) != confidence {
			continue
		}
		reports = append(reports, models.NewGroupReport(g))
	}

	return c.JSON(http.StatusOK, reports)
}

// GetGroup returns one group by id from a live detection pass.
func GetGroup(c echo.Context) error {
	ctx := c.Request().Context()
	groupID := c.Param("id")

	ctx, eng, err := ectoinject.GetContext[*engine.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	groups, err := eng.Detect(ctx, engine.Scope{GroupID: groupID})
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "group %s not found", groupID)
	}

	return c.JSON(http.StatusOK, models.NewGroupReport(groups[0]))
}
