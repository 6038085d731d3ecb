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

// CommentHandler handles post-return incident report endpoints.
type CommentHandler struct {
	service *service.CommentService
}

// NewCommentHandler creates a new comment handler.
func NewCommentHandler(svc *service.CommentService) *CommentHandler {
	return &CommentHandler{service: svc}
}

// Create godoc
// @Summary File incident report
// @Description Attach a tagged incident report to a finalized loan
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.CreateCommentRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid report payload"))
		return
	}

	comment, err := h.service.Create(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, comment)
}

// List godoc
// @Summary List incident reports
// @Tags Comments
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Param projector_id query string false "Projector filter"
// @Success 200 {object} response.Envelope
// @Router /comments [get]
func (h *CommentHandler) List(c *gin.Context) {
	var filter models.CommentFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if status := c.Query("status"); status != "" {
		s := models.CommentStatus(status)
		filter.Status = &s
	}
	filter.ProjectorID = c.Query("projector_id")

	comments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, comments, pagination)
}

// Resolve godoc
// @Summary Resolve incident report
// @Description Mark a pending report as handled
// @Tags Comments
// @Produce json
// @Param id path string true "Comment ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /comments/{id}/resolve [post]
func (h *CommentHandler) Resolve(c *gin.Context) {
	comment, err := h.service.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, comment, nil)
}
