package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/service"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
	"github.com/Chikiak/HospitalPro/pkg/response"
)

// TemplateHandler exposes schedule template management endpoints.
type TemplateHandler struct {
	service *service.TemplateService
}

// NewTemplateHandler creates a new handler.
func NewTemplateHandler(svc *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: svc}
}

// Upsert godoc
// @Summary Create or replace a weekly template
// @Description Store a template, archiving the active one for the same category and weekday
// @Tags Schedule Templates
// @Accept json
// @Produce json
// @Param payload body service.UpsertTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /schedule-templates [put]
func (h *TemplateHandler) Upsert(c *gin.Context) {
	var req service.UpsertTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}

	template, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, template)
}

// Get godoc
// @Summary Get a schedule template
// @Description Load one template by id, archived definitions included
// @Tags Schedule Templates
// @Produce json
// @Param id path string true "Template id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule-templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// List godoc
// @Summary List schedule templates
// @Description List templates filtered by category and type, optionally including archived ones
// @Tags Schedule Templates
// @Produce json
// @Param category_id query string false "Category id"
// @Param category_type query string false "specialty or laboratory"
// @Param include_archived query bool false "Include archived templates"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	filter := models.TemplateFilter{
		CategoryID:      c.Query("category_id"),
		CategoryType:    models.CategoryType(c.Query("category_type")),
		IncludeArchived: c.Query("include_archived") == "true",
	}

	templates, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, templates, nil)
}
