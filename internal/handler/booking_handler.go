package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/service"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
	"github.com/Chikiak/HospitalPro/pkg/response"
)

// BookingHandler exposes booking ledger endpoints.
type BookingHandler struct {
	service *service.BookingService
}

// NewBookingHandler creates a new handler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Create godoc
// @Summary Book a slot
// @Description Reserve one capacity unit of a slot; fails with 409 when the slot is full
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.BookRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	booking, err := h.service.Book(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, booking)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// List godoc
// @Summary List bookings
// @Description List bookings visible to the caller; patients only see their own
// @Tags Bookings
// @Produce json
// @Param patient_id query string false "Patient id (staff only)"
// @Param category_id query string false "Category id"
// @Param status query string false "Booking status"
// @Param from query string false "Window start, YYYY-MM-DD"
// @Param to query string false "Window end, YYYY-MM-DD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	filter := models.BookingFilter{
		PatientID:  c.Query("patient_id"),
		CategoryID: c.Query("category_id"),
		Status:     models.BookingStatus(c.Query("status")),
	}
	if raw := c.Query("from"); raw != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			filter.From = &parsed
		}
	}
	if raw := c.Query("to"); raw != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			end := parsed.AddDate(0, 0, 1).Add(-time.Second)
			filter.To = &end
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	bookings, total, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, bookings, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Cancel godoc
// @Summary Cancel a booking
// @Description Release the booking's capacity unit; terminal bookings cannot be cancelled
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	booking, err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Confirm godoc
// @Summary Confirm a booking
// @Description Staff confirms patient attendance intent
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c *gin.Context) {
	booking, err := h.service.Confirm(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Complete godoc
// @Summary Complete a booking
// @Description Staff marks a confirmed booking as attended
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/complete [post]
func (h *BookingHandler) Complete(c *gin.Context) {
	booking, err := h.service.Complete(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}
