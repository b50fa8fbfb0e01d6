package pipeline

import (
	"errors"
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
	api.POST("/pipeline/apply", h.Apply)
	api.POST("/pipeline/rules/:rule_id/apply", h.ApplyRule)
	api.GET("/pipeline/rules", h.Rules)
	api.GET("/rule-runs", h.Runs)
}

func (h *Handler) Apply(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Async {
		ack, err := h.svc.ApplyAsync(c.Request().Context(), req)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusAccepted, ack)
	}
	report, err := h.svc.Apply(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ApplyRule(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	outcome, err := h.svc.ApplyRule(c.Request().Context(), c.Param("rule_id"), req)
	if err != nil {
		if errors.Is(err, ErrUnknownRule) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) Rules(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Rules())
}

func (h *Handler) Runs(c echo.Context) error {
	var f RunFilter
	f.RuleID = c.QueryParam("rule_id")
	f.UploadBatch = c.QueryParam("upload_batch")
	if v := c.QueryParam("source_file"); v != "" {
		source, err := records.ParseSourceFile(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.SourceFile = source
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.Runs(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
