package handler

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalmiddleware "github.com/Chikiak/HospitalPro/internal/middleware"
	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/repository"
	"github.com/Chikiak/HospitalPro/internal/service"
)

type templateRepoStub struct {
	templates []models.ScheduleTemplate
}

func (s *templateRepoStub) Upsert(ctx context.Context, template *models.ScheduleTemplate) error {
	return nil
}

func (s *templateRepoStub) ListActive(ctx context.Context, categoryID string) ([]models.ScheduleTemplate, error) {
	var out []models.ScheduleTemplate
	for _, tpl := range s.templates {
		if tpl.CategoryID == categoryID {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (s *templateRepoStub) List(ctx context.Context, filter models.TemplateFilter) ([]models.ScheduleTemplate, error) {
	return s.templates, nil
}

func (s *templateRepoStub) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	return len(s.templates) > 0, nil
}

type bookingRepoStub struct {
	items map[string]*models.Booking
	seq   int
}

func (s *bookingRepoStub) CreateWithCapacity(ctx context.Context, booking *models.Booking, capacity int) error {
	if s.items == nil {
		s.items = make(map[string]*models.Booking)
	}
	active := 0
	for _, b := range s.items {
		if b.CategoryID == booking.CategoryID && b.SlotDatetime.Equal(booking.SlotDatetime) && b.Status != models.BookingCancelled {
			active++
		}
	}
	if active >= capacity {
		return repository.ErrCapacityExhausted
	}
	s.seq++
	booking.ID = fmt.Sprintf("booking-%d", s.seq)
	cp := *booking
	s.items[booking.ID] = &cp
	return nil
}

func (s *bookingRepoStub) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := s.items[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookingRepoStub) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	var out []models.Booking
	for _, b := range s.items {
		if filter.PatientID != "" && b.PatientID != filter.PatientID {
			continue
		}
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (s *bookingRepoStub) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	if b, ok := s.items[id]; ok {
		b.Status = status
	}
	return nil
}

type auditRepoStub struct{}

func (s *auditRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

// nextWeekday returns the next future date on the given weekday index
// (0=Monday), at least a week out so the slot is always bookable.
func nextWeekday(day int) time.Time {
	date := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 7)
	for models.WeekdayIndex(date) != day {
		date = date.AddDate(0, 0, 1)
	}
	return date
}

func buildBookingRouter(capacity int) (*gin.Engine, *bookingRepoStub) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID:   c.GetHeader("X-Test-User"),
				Role:     models.UserRole(role),
				FullName: "Test User",
			})
		}
		c.Next()
	})

	templates := &templateRepoStub{templates: []models.ScheduleTemplate{{
		ID:                   "tpl-1",
		CategoryID:           "cardiology",
		CategoryType:         models.CategorySpecialty,
		Name:                 "Cardiology",
		DayOfWeek:            1,
		StartTime:            "09:00",
		SlotDurationMinutes:  30,
		MaxConcurrentPerSlot: capacity,
		RotationType:         models.RotationFixed,
		Active:               true,
	}}}
	bookings := &bookingRepoStub{}
	svc := service.NewBookingService(bookings, templates, &auditRepoStub{}, nil, nil, validator.New(), zap.NewNop())
	h := NewBookingHandler(svc)

	group := router.Group("/bookings")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/cancel", h.Cancel)
	group.POST("/:id/confirm", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleStaff), h.Confirm)

	return router, bookings
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func bookingPayload() string {
	slotAt := nextWeekday(1).Add(9 * time.Hour)
	return fmt.Sprintf(`{"category_id":"cardiology","slot_datetime":%q}`, slotAt.Format(time.RFC3339))
}

func TestBookingRoutes(t *testing.T) {
	t.Run("create success", func(t *testing.T) {
		router, _ := buildBookingRouter(2)
		req, _ := http.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(bookingPayload()))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"scheduled"`)
	})

	t.Run("create slot full", func(t *testing.T) {
		router, _ := buildBookingRouter(1)
		payload := bookingPayload()

		req, _ := http.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p1")
		require.Equal(t, http.StatusCreated, performRequest(router, req).Code)

		req, _ = http.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, resp.Body.String(), "SLOT_UNAVAILABLE")
	})

	t.Run("create unauthorized", func(t *testing.T) {
		router, _ := buildBookingRouter(2)
		req, _ := http.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(bookingPayload()))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("cancel another patients booking forbidden", func(t *testing.T) {
		router, repo := buildBookingRouter(2)
		req, _ := http.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(bookingPayload()))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p1")
		require.Equal(t, http.StatusCreated, performRequest(router, req).Code)
		require.Len(t, repo.items, 1)

		req, _ = http.NewRequest(http.MethodPost, "/bookings/booking-1/cancel", nil)
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("confirm requires staff role", func(t *testing.T) {
		router, _ := buildBookingRouter(2)
		req, _ := http.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(bookingPayload()))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p1")
		require.Equal(t, http.StatusCreated, performRequest(router, req).Code)

		req, _ = http.NewRequest(http.MethodPost, "/bookings/booking-1/confirm", nil)
		req.Header.Set("X-Test-Role", string(models.RolePatient))
		req.Header.Set("X-Test-User", "p1")
		require.Equal(t, http.StatusForbidden, performRequest(router, req).Code)

		req, _ = http.NewRequest(http.MethodPost, "/bookings/booking-1/confirm", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStaff))
		req.Header.Set("X-Test-User", "staff-1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"confirmed"`)
	})
}
