package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/caretrack/caretrack/internal/platform/auth"
	"github.com/caretrack/caretrack/pkg/pagination"
)

type Handler struct {
	recorder *Recorder
}

func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// RegisterRoutes mounts the read surface. The trail exposes access patterns
// across patients, so it is restricted to admins.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit-log", h.ListEntries, auth.RequireRole("admin"))
}

// ListEntries returns audit entries newest-first, filterable by entity_type,
// action and patient_id.
func (h *Handler) ListEntries(c echo.Context) error {
	params := map[string]string{}
	for _, key := range []string{"entity_type", "action", "patient_id"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}

	pg := pagination.FromContext(c)
	items, total, err := h.recorder.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
