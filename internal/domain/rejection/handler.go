package rejection

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/rejections", h.List)
	api.POST("/rejections/replay", h.Replay)
}

func (h *Handler) List(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("reason_code"); v != "" {
		rc, err := ParseReasonCode(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.ReasonCode = rc
	}
	if v := c.QueryParam("source_file"); v != "" {
		sf, err := records.ParseSourceFile(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.SourceFile = sf
	}
	f.UploadBatch = c.QueryParam("upload_batch")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Replay(c echo.Context) error {
	var req ReplayRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Replay(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
