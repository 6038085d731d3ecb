package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/service"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
	"github.com/campus-tic/projector-loan-api/pkg/response"
)

// ProjectorHandler handles fleet management endpoints.
type ProjectorHandler struct {
	service *service.ProjectorService
}

// NewProjectorHandler creates a new projector handler.
func NewProjectorHandler(svc *service.ProjectorService) *ProjectorHandler {
	return &ProjectorHandler{service: svc}
}

// List godoc
// @Summary List projectors
// @Description List the projector fleet with pagination and filtering
// @Tags Projectors
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Param grade query string false "Grade filter"
// @Param group query string false "Group filter"
// @Param shift query string false "Shift filter"
// @Success 200 {object} response.Envelope
// @Router /projectors [get]
func (h *ProjectorHandler) List(c *gin.Context) {
	var filter models.ProjectorFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	if status := c.Query("status"); status != "" {
		s := models.ProjectorStatus(status)
		filter.Status = &s
	}
	if shift := c.Query("shift"); shift != "" {
		s := models.Shift(shift)
		filter.Shift = &s
	}
	filter.Grade = c.Query("grade")
	filter.Group = c.Query("group")

	projectors, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, projectors, pagination)
}

// ListAvailable godoc
// @Summary List available projectors
// @Description List units an admin may assign, optionally narrowed by shift
// @Tags Projectors
// @Produce json
// @Param shift query string false "Shift filter"
// @Success 200 {object} response.Envelope
// @Router /projectors/available [get]
func (h *ProjectorHandler) ListAvailable(c *gin.Context) {
	var shift *models.Shift
	if raw := c.Query("shift"); raw != "" {
		s := models.Shift(raw)
		shift = &s
	}

	projectors, err := h.service.ListAvailable(c.Request.Context(), shift)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, projectors, nil)
}

// Get godoc
// @Summary Get projector
// @Tags Projectors
// @Produce json
// @Param id path string true "Projector ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projectors/{id} [get]
func (h *ProjectorHandler) Get(c *gin.Context) {
	projector, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, projector, nil)
}

// Create godoc
// @Summary Register projector
// @Tags Projectors
// @Accept json
// @Produce json
// @Param payload body service.CreateProjectorRequest true "Projector payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projectors [post]
func (h *ProjectorHandler) Create(c *gin.Context) {
	var req service.CreateProjectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid projector payload"))
		return
	}

	projector, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, projector)
}

// Update godoc
// @Summary Update projector
// @Tags Projectors
// @Accept json
// @Produce json
// @Param id path string true "Projector ID"
// @Param payload body service.UpdateProjectorRequest true "Projector payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projectors/{id} [put]
func (h *ProjectorHandler) Update(c *gin.Context) {
	var req service.UpdateProjectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid projector payload"))
		return
	}

	projector, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, projector, nil)
}

// Delete godoc
// @Summary Remove projector
// @Tags Projectors
// @Produce json
// @Param id path string true "Projector ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projectors/{id} [delete]
func (h *ProjectorHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
