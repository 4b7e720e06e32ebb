package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/repository"
	"github.com/Chikiak/HospitalPro/pkg/config"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type slotBookingRepository interface {
	ActiveCountsInWindow(ctx context.Context, categoryID string, from, to time.Time) ([]repository.SlotUsage, error)
}

// GenerateSlotsRequest describes a slot window query. Dates are YYYY-MM-DD;
// both bounds are inclusive and optional.
type GenerateSlotsRequest struct {
	CategoryID string
	From       string
	To         string
}

// SlotService materializes bookable slots on demand from active templates.
// Slots are derived, never persisted; remaining capacity is template capacity
// minus non-cancelled bookings for the same (category, datetime).
type SlotService struct {
	templates templateRepository
	bookings  slotBookingRepository
	cache     *CacheService
	cfg       config.SlotsConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewSlotService instantiates SlotService.
func NewSlotService(templates templateRepository, bookings slotBookingRepository, cache *CacheService, cfg config.SlotsConfig, logger *zap.Logger) *SlotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = 14
	}
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = 90
	}
	return &SlotService{templates: templates, bookings: bookings, cache: cache, cfg: cfg, logger: logger, now: time.Now}
}

// templateAppliesOn reports whether the template produces a slot on the given
// calendar date. For alternated rotation the date must be on or after the
// anchor and fall a whole multiple of the period after it.
func templateAppliesOn(tpl *models.ScheduleTemplate, date time.Time) bool {
	if models.WeekdayIndex(date) != tpl.DayOfWeek {
		return false
	}
	if tpl.RotationType != models.RotationAlternated {
		return true
	}
	if tpl.AnchorDate == nil || tpl.RotationPeriodWeeks == nil || *tpl.RotationPeriodWeeks <= 0 {
		return false
	}
	anchor := tpl.AnchorDate.UTC().Truncate(24 * time.Hour)
	if date.Before(anchor) {
		return false
	}
	weeks := int(date.Sub(anchor).Hours()/24) / 7
	return weeks%*tpl.RotationPeriodWeeks == 0
}

// slotDatetime combines a calendar date with the template start time, in UTC.
func slotDatetime(tpl *models.ScheduleTemplate, date time.Time) (time.Time, error) {
	start, err := time.Parse(models.TimeLayout, tpl.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse template start time %q: %w", tpl.StartTime, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), start.Hour(), start.Minute(), 0, 0, time.UTC), nil
}

// Generate returns the bookable slots of a category for a date window in
// chronological order. Fully booked slots are omitted.
func (s *SlotService) Generate(ctx context.Context, req GenerateSlotsRequest) ([]models.Slot, error) {
	if req.CategoryID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category_id is required")
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	from := today
	if req.From != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.From, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "from must be YYYY-MM-DD")
		}
		from = parsed
	}
	to := from.AddDate(0, 0, s.cfg.DefaultWindowDays-1)
	if req.To != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.To, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidRange, "to must be YYYY-MM-DD")
		}
		to = parsed
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "to must not precede from")
	}
	if int(to.Sub(from).Hours()/24)+1 > s.cfg.MaxWindowDays {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, fmt.Sprintf("window exceeds %d days", s.cfg.MaxWindowDays))
	}

	exists, err := s.templates.CategoryExists(ctx, req.CategoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve category")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown category")
	}

	cacheKey := fmt.Sprintf("slots:%s:%s:%s", req.CategoryID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if s.cache.Enabled() {
		var cached []models.Slot
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	templates, err := s.templates.ListActive(ctx, req.CategoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load templates")
	}

	byDay := make(map[int]*models.ScheduleTemplate, len(templates))
	for i := range templates {
		byDay[templates[i].DayOfWeek] = &templates[i]
	}

	usage, err := s.bookings.ActiveCountsInWindow(ctx, req.CategoryID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking counts")
	}
	booked := make(map[int64]int, len(usage))
	for _, u := range usage {
		booked[u.SlotDatetime.UTC().Unix()] = u.Count
	}

	slots := make([]models.Slot, 0)
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		tpl, ok := byDay[models.WeekdayIndex(date)]
		if !ok || !templateAppliesOn(tpl, date) {
			continue
		}
		at, err := slotDatetime(tpl, date)
		if err != nil {
			s.logger.Warn("skipping template with malformed start time",
				zap.String("template_id", tpl.ID), zap.Error(err))
			continue
		}
		remaining := tpl.MaxConcurrentPerSlot - booked[at.Unix()]
		if remaining <= 0 {
			continue
		}
		slots = append(slots, models.Slot{
			CategoryID:        tpl.CategoryID,
			CategoryType:      tpl.CategoryType,
			CategoryName:      tpl.Name,
			TemplateID:        tpl.ID,
			SlotDatetime:      at,
			CapacityRemaining: remaining,
			DeadlineTime:      tpl.DeadlineTime,
			WarningMessage:    tpl.WarningMessage,
		})
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, slots, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache slot window", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return slots, nil
}
