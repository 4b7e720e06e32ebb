package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Chikiak/HospitalPro/internal/service"
	"github.com/Chikiak/HospitalPro/pkg/response"
)

// SlotHandler exposes slot availability endpoints.
type SlotHandler struct {
	service *service.SlotService
}

// NewSlotHandler creates a new handler.
func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List available slots
// @Description Generate bookable slots for a category over a date window
// @Tags Slots
// @Produce json
// @Param category_id query string true "Category id"
// @Param from query string false "Window start, YYYY-MM-DD (default today)"
// @Param to query string false "Window end, YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	req := service.GenerateSlotsRequest{
		CategoryID: c.Query("category_id"),
		From:       c.Query("from"),
		To:         c.Query("to"),
	}

	slots, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, slots, nil)
}
