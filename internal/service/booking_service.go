package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/repository"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type bookingRepository interface {
	CreateWithCapacity(ctx context.Context, booking *models.Booking, capacity int) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error
}

type bookingAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// BookRequest describes a booking attempt. PatientID defaults to the actor;
// staff may book on behalf of any patient.
type BookRequest struct {
	PatientID    string  `json:"patient_id"`
	CategoryID   string  `json:"category_id" validate:"required"`
	SlotDatetime string  `json:"slot_datetime" validate:"required"`
	Notes        *string `json:"notes"`
	IP           string  `json:"-"`
	UserAgent    string  `json:"-"`
}

// BookingService is the booking ledger. Every mutation carries the acting
// user's claims so ownership rules are enforced here, not only at the routes.
type BookingService struct {
	bookings  bookingRepository
	templates templateRepository
	audits    bookingAuditRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBookingService instantiates BookingService.
func NewBookingService(bookings bookingRepository, templates templateRepository, audits bookingAuditRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		bookings:  bookings,
		templates: templates,
		audits:    audits,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// resolveTemplate finds the active template that produces a slot at the exact
// requested datetime, or nil when no such slot exists.
func (s *BookingService) resolveTemplate(ctx context.Context, categoryID string, at time.Time) (*models.ScheduleTemplate, error) {
	templates, err := s.templates.ListActive(ctx, categoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load templates")
	}
	date := at.UTC().Truncate(24 * time.Hour)
	for i := range templates {
		tpl := &templates[i]
		if !templateAppliesOn(tpl, date) {
			continue
		}
		slotAt, err := slotDatetime(tpl, date)
		if err != nil {
			continue
		}
		if slotAt.Equal(at.UTC()) {
			return tpl, nil
		}
	}
	return nil, nil
}

// Book reserves one capacity unit of a slot for a patient. The capacity check
// and insert run atomically in the repository, so a full slot is reported even
// when a stale cached window still advertised it.
func (s *BookingService) Book(ctx context.Context, actor *models.JWTClaims, req BookRequest) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	patientID := req.PatientID
	if patientID == "" {
		patientID = actor.UserID
	}
	if actor.Role == models.RolePatient && patientID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "patients may only book for themselves")
	}

	slotAt, err := time.Parse(time.RFC3339, req.SlotDatetime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot_datetime must be RFC 3339")
	}
	slotAt = slotAt.UTC()

	now := s.now().UTC()
	if !slotAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot_datetime must be in the future")
	}

	tpl, err := s.resolveTemplate(ctx, req.CategoryID, slotAt)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		s.metrics.RecordBookingOutcome("rejected")
		return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "no bookable slot at the requested time")
	}

	if tpl.DeadlineTime != nil && sameDay(slotAt, now) {
		deadline, err := time.Parse(models.TimeLayout, *tpl.DeadlineTime)
		if err == nil {
			cutoff := time.Date(now.Year(), now.Month(), now.Day(), deadline.Hour(), deadline.Minute(), 0, 0, time.UTC)
			if now.After(cutoff) {
				s.metrics.RecordBookingOutcome("rejected")
				return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "laboratory acceptance deadline has passed for today")
			}
		}
	}

	booking := models.Booking{
		PatientID:    patientID,
		CategoryID:   tpl.CategoryID,
		CategoryName: tpl.Name,
		SlotDatetime: slotAt,
		Status:       models.BookingScheduled,
		Notes:        req.Notes,
	}

	queryStart := time.Now()
	err = s.bookings.CreateWithCapacity(ctx, &booking, tpl.MaxConcurrentPerSlot)
	s.metrics.ObserveDBQuery("bookings.create_with_capacity", time.Since(queryStart))
	if err != nil {
		if errors.Is(err, repository.ErrCapacityExhausted) {
			s.metrics.RecordBookingOutcome("slot_full")
			return nil, appErrors.ErrSlotUnavailable
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	s.metrics.RecordBookingOutcome("created")

	s.recordAudit(ctx, actor, models.AuditActionBookingCreate, booking.ID, req.IP, req.UserAgent)
	s.invalidateSlots(ctx, booking.CategoryID)
	return &booking, nil
}

// Get loads one booking. Patients may only read their own.
func (s *BookingService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	booking, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// Cancel releases a booking's capacity unit. Patients may only cancel their
// own bookings; terminal states cannot be cancelled.
func (s *BookingService) Cancel(ctx context.Context, actor *models.JWTClaims, id, ip, userAgent string) (*models.Booking, error) {
	booking, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, booking, models.BookingCancelled, models.AuditActionBookingCancel, ip, userAgent)
}

// Confirm moves a scheduled booking to confirmed. Staff only, enforced at the
// routes; the state machine is still checked here.
func (s *BookingService) Confirm(ctx context.Context, actor *models.JWTClaims, id, ip, userAgent string) (*models.Booking, error) {
	return s.staffTransition(ctx, actor, id, models.BookingConfirmed, models.AuditActionBookingConfirm, ip, userAgent)
}

// Complete moves a confirmed booking to completed.
func (s *BookingService) Complete(ctx context.Context, actor *models.JWTClaims, id, ip, userAgent string) (*models.Booking, error) {
	return s.staffTransition(ctx, actor, id, models.BookingCompleted, models.AuditActionBookingComplete, ip, userAgent)
}

// List returns bookings visible to the actor. Patients are always scoped to
// their own bookings regardless of the requested filter.
func (s *BookingService) List(ctx context.Context, actor *models.JWTClaims, filter models.BookingFilter) ([]models.Booking, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RolePatient {
		filter.PatientID = actor.UserID
	}
	queryStart := time.Now()
	bookings, total, err := s.bookings.List(ctx, filter)
	s.metrics.ObserveDBQuery("bookings.list", time.Since(queryStart))
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, total, nil
}

func (s *BookingService) findOwned(ctx context.Context, actor *models.JWTClaims, id string) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking id is required")
	}
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if actor.Role == models.RolePatient && booking.PatientID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "booking belongs to another patient")
	}
	return booking, nil
}

func (s *BookingService) staffTransition(ctx context.Context, actor *models.JWTClaims, id string, to models.BookingStatus, auditAction, ip, userAgent string) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RolePatient {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}
	booking, err := s.findOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, booking, to, auditAction, ip, userAgent)
}

func (s *BookingService) transition(ctx context.Context, actor *models.JWTClaims, booking *models.Booking, to models.BookingStatus, auditAction, ip, userAgent string) (*models.Booking, error) {
	if !booking.Status.CanTransition(to) {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("cannot move booking from %s to %s", booking.Status, to))
	}
	if err := s.bookings.UpdateStatus(ctx, booking.ID, to); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking")
	}
	booking.Status = to
	booking.UpdatedAt = s.now().UTC()
	if auditAction != "" {
		s.recordAudit(ctx, actor, auditAction, booking.ID, ip, userAgent)
	}
	if to == models.BookingCancelled {
		s.invalidateSlots(ctx, booking.CategoryID)
	}
	return booking, nil
}

func (s *BookingService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, bookingID, ip, userAgent string) {
	if s.audits == nil {
		return
	}
	userID := actor.UserID
	log := models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "bookings",
		ResourceID: &bookingID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.audits.CreateAuditLog(ctx, &log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *BookingService) invalidateSlots(ctx context.Context, categoryID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.InvalidateSlots(ctx, categoryID); err != nil {
		s.logger.Warn("failed to invalidate slot cache", zap.String("category_id", categoryID), zap.Error(err))
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
