package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-grievance-api/internal/dto"
	"github.com/noah-isme/campus-grievance-api/internal/models"
	"github.com/noah-isme/campus-grievance-api/internal/service"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
	"github.com/noah-isme/campus-grievance-api/pkg/response"
)

type grievanceService interface {
	Create(ctx context.Context, req dto.CreateGrievanceRequest, actor models.Actor) (*models.Grievance, error)
	ListForActor(ctx context.Context, q dto.GrievanceListQuery, actor models.Actor) ([]models.Grievance, *models.Pagination, error)
	GetByID(ctx context.Context, id string, actor models.Actor) (*models.Grievance, error)
	ChangeStatus(ctx context.Context, id string, req dto.ChangeStatusRequest, actor models.Actor) (*models.Grievance, error)
	Assign(ctx context.Context, id string, req dto.AssignRequest, actor models.Actor) (*models.Grievance, error)
	Delete(ctx context.Context, id string, actor models.Actor) error
	Export(ctx context.Context, format string, actor models.Actor) ([]byte, string, error)
}

// GrievanceHandler exposes the grievance workflow endpoints.
type GrievanceHandler struct {
	service grievanceService
	metrics *service.MetricsService
}

// NewGrievanceHandler builds a new handler.
func NewGrievanceHandler(svc grievanceService, metrics *service.MetricsService) *GrievanceHandler {
	return &GrievanceHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Submit a grievance
// @Tags Grievances
// @Accept json
// @Produce json
// @Param payload body dto.CreateGrievanceRequest true "Grievance payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grievances [post]
func (h *GrievanceHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)
	var req dto.CreateGrievanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grievance payload"))
		return
	}
	g, err := h.service.Create(c.Request.Context(), req, actor)
	h.metrics.CountGrievanceOp("create", err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, g)
}

// ListMine godoc
// @Summary List the caller's own grievances
// @Tags Grievances
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grievances/my [get]
func (h *GrievanceHandler) ListMine(c *gin.Context) {
	h.list(c)
}

// List godoc
// @Summary List grievances in the caller's scope
// @Tags Grievances
// @Produce json
// @Param status query string false "Status filter (admin only)"
// @Param priority query string false "Priority filter (admin only)"
// @Param category query string false "Category filter (admin only)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grievances [get]
func (h *GrievanceHandler) List(c *gin.Context) {
	h.list(c)
}

func (h *GrievanceHandler) list(c *gin.Context) {
	actor := actorFromContext(c)
	var q dto.GrievanceListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid list query"))
		return
	}
	items, pagination, err := h.service.ListForActor(c.Request.Context(), q, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a single grievance
// @Tags Grievances
// @Produce json
// @Param id path string true "Grievance ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grievances/{id} [get]
func (h *GrievanceHandler) Get(c *gin.Context) {
	actor := actorFromContext(c)
	g, err := h.service.GetByID(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, g, nil)
}

// UpdateStatus godoc
// @Summary Change grievance status with a remark
// @Tags Grievances
// @Accept json
// @Produce json
// @Param id path string true "Grievance ID"
// @Param payload body dto.ChangeStatusRequest true "Status and remark"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grievances/{id}/status [patch]
func (h *GrievanceHandler) UpdateStatus(c *gin.Context) {
	actor := actorFromContext(c)
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status and remark are both required"))
		return
	}
	g, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req, actor)
	h.metrics.CountGrievanceOp("change_status", err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, g, nil)
}

// Assign godoc
// @Summary Assign or unassign a grievance
// @Tags Grievances
// @Accept json
// @Produce json
// @Param id path string true "Grievance ID"
// @Param payload body dto.AssignRequest true "Assignment target (null to unassign)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grievances/{id}/assign [patch]
func (h *GrievanceHandler) Assign(c *gin.Context) {
	actor := actorFromContext(c)
	var req dto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	g, err := h.service.Assign(c.Request.Context(), c.Param("id"), req, actor)
	h.metrics.CountGrievanceOp("assign", err == nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, g, nil)
}

// Delete godoc
// @Summary Delete a grievance permanently
// @Tags Grievances
// @Produce json
// @Param id path string true "Grievance ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grievances/{id} [delete]
func (h *GrievanceHandler) Delete(c *gin.Context) {
	actor := actorFromContext(c)
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id, actor); err != nil {
		h.metrics.CountGrievanceOp("delete", false)
		response.Error(c, err)
		return
	}
	h.metrics.CountGrievanceOp("delete", true)
	response.JSON(c, http.StatusOK, gin.H{"message": "grievance deleted", "id": id}, nil)
}

// Export godoc
// @Summary Export the grievance register
// @Tags Grievances
// @Produce text/csv
// @Param format query string false "csv or pdf"
// @Success 200
// @Failure 403 {object} response.Envelope
// @Router /grievances/export [get]
func (h *GrievanceHandler) Export(c *gin.Context) {
	actor := actorFromContext(c)
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.Export(c.Request.Context(), format, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	filename := fmt.Sprintf("grievances-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
