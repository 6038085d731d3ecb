package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/service"
	appErrors "github.com/campus-tic/projector-loan-api/pkg/errors"
	"github.com/campus-tic/projector-loan-api/pkg/response"
)

// LoanHandler exposes the request lifecycle endpoints.
type LoanHandler struct {
	service *service.LoanService
}

// NewLoanHandler creates a new loan handler.
func NewLoanHandler(svc *service.LoanService) *LoanHandler {
	return &LoanHandler{service: svc}
}

// List godoc
// @Summary List loan requests
// @Description Admins see all requests; standard users only their own
// @Tags Loans
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Status filter"
// @Param from query string false "Window start (RFC3339)"
// @Param to query string false "Window end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /loans [get]
func (h *LoanHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.LoanFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	if status := c.Query("status"); status != "" {
		s := models.LoanStatus(status)
		filter.Status = &s
	}
	if from := c.Query("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &ts
		}
	}

	filter.UserID = c.Query("user_id")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	loans, pagination, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loans, pagination)
}

// Get godoc
// @Summary Get loan request
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	loan, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loan, nil)
}

// Create godoc
// @Summary Submit loan request
// @Description Create a PENDING request for a time window
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.CreateLoanRequest true "Loan payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans [post]
func (h *LoanHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid loan payload"))
		return
	}

	loan, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, loan)
}

// Update godoc
// @Summary Edit loan window
// @Description Rewrite the window of a still-pending request
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.UpdateLoanRequest true "Loan payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id} [put]
func (h *LoanHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid loan payload"))
		return
	}

	loan, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loan, nil)
}

// Withdraw godoc
// @Summary Withdraw loan request
// @Description Delete a still-pending request
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 204 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id} [delete]
func (h *LoanHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Approve godoc
// @Summary Approve loan request
// @Description Assign a projector and move the request to APPROVED
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.ApproveLoanRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id}/approve [post]
func (h *LoanHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ApproveLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}

	loan, err := h.service.Approve(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loan, nil)
}

// Reject godoc
// @Summary Reject loan request
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id}/reject [post]
func (h *LoanHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	loan, err := h.service.Reject(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loan, nil)
}

// Finalize godoc
// @Summary Finalize loan request
// @Description Confirm the projector return and close the request
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.FinalizeLoanRequest true "Finalize payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id}/finalize [post]
func (h *LoanHandler) Finalize(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.FinalizeLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid finalize payload"))
		return
	}

	loan, err := h.service.Finalize(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, loan, nil)
}

// Token godoc
// @Summary Issue handoff token
// @Description Return the QR payload for the loan's current stage
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /loans/{id}/token [get]
func (h *LoanHandler) Token(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, err := h.service.Token(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"token": token}, nil)
}

// Scan godoc
// @Summary Resolve scanned token
// @Description Decode a scanned QR payload and tell the client what to do next
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.ScanRequest true "Scanned payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /loans/scan [post]
func (h *LoanHandler) Scan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}

	resolution, err := h.service.Scan(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, resolution, nil)
}
