package reference

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/volumetria/volumetria/pkg/pagination"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reference/catalog", h.ListCatalog)
	api.GET("/reference/exclusion-criteria", h.ListExclusionCriteria)
}

func (h *Handler) ListCatalog(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.repo.ListEntries(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListExclusionCriteria(c echo.Context) error {
	criteria, err := h.repo.ExclusionCriteria(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, criteria)
}
