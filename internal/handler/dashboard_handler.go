package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-tic/projector-loan-api/internal/service"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
	"github.com/campus-tic/projector-loan-api/pkg/response"
)

// DashboardHandler exposes the admin summary and refresh endpoints.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Admin dashboard summary
// @Description Aggregate loan, fleet and report counters
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "dashboard not configured"))
		return
	}

	summary, cached, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cached": cached})
}

// Refresh godoc
// @Summary Force dashboard recompute
// @Description Drop the cached summary and return freshly computed counters
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/refresh [post]
func (h *DashboardHandler) Refresh(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "dashboard not configured"))
		return
	}

	h.service.Invalidate(c.Request.Context())
	summary, _, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cached": false})
}
