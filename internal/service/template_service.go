package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type templateRepository interface {
	Upsert(ctx context.Context, template *models.ScheduleTemplate) error
	ListActive(ctx context.Context, categoryID string) ([]models.ScheduleTemplate, error)
	List(ctx context.Context, filter models.TemplateFilter) ([]models.ScheduleTemplate, error)
	CategoryExists(ctx context.Context, categoryID string) (bool, error)
}

type templateStore interface {
	templateRepository
	FindByID(ctx context.Context, id string) (*models.ScheduleTemplate, error)
}

// UpsertTemplateRequest describes payload for creating or replacing the weekly
// template of a (category, weekday) pair.
type UpsertTemplateRequest struct {
	CategoryID           string  `json:"category_id" validate:"required,max=100"`
	CategoryType         string  `json:"category_type" validate:"required,oneof=specialty laboratory"`
	Name                 string  `json:"name" validate:"required,max=100"`
	DayOfWeek            int     `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime            string  `json:"start_time" validate:"required"`
	SlotDurationMinutes  int     `json:"slot_duration_minutes" validate:"gt=0"`
	MaxConcurrentPerSlot int     `json:"max_concurrent_per_slot" validate:"gt=0"`
	RotationType         string  `json:"rotation_type" validate:"required,oneof=fixed alternated"`
	RotationPeriodWeeks  *int    `json:"rotation_period_weeks"`
	AnchorDate           *string `json:"anchor_date"`
	DeadlineTime         *string `json:"deadline_time"`
	WarningMessage       *string `json:"warning_message"`
}

// TemplateService coordinates schedule template management.
type TemplateService struct {
	repo      templateStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTemplateService instantiates TemplateService.
func NewTemplateService(repo templateStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// Upsert validates and stores a template, superseding the active one for the
// same (category, weekday).
func (s *TemplateService) Upsert(ctx context.Context, req UpsertTemplateRequest) (*models.ScheduleTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}

	if _, err := time.Parse(models.TimeLayout, req.StartTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}

	template := models.ScheduleTemplate{
		CategoryID:           req.CategoryID,
		CategoryType:         models.CategoryType(req.CategoryType),
		Name:                 req.Name,
		DayOfWeek:            req.DayOfWeek,
		StartTime:            req.StartTime,
		SlotDurationMinutes:  req.SlotDurationMinutes,
		MaxConcurrentPerSlot: req.MaxConcurrentPerSlot,
		RotationType:         models.RotationType(req.RotationType),
	}

	switch template.RotationType {
	case models.RotationAlternated:
		if req.RotationPeriodWeeks == nil || *req.RotationPeriodWeeks < 2 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "alternated rotation requires rotation_period_weeks >= 2")
		}
		if req.AnchorDate == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "alternated rotation requires anchor_date")
		}
		anchor, err := time.ParseInLocation("2006-01-02", *req.AnchorDate, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "anchor_date must be YYYY-MM-DD")
		}
		today := s.now().UTC().Truncate(24 * time.Hour)
		if anchor.After(today) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "anchor_date must not be in the future")
		}
		if models.WeekdayIndex(anchor) != req.DayOfWeek {
			return nil, appErrors.Clone(appErrors.ErrValidation, "anchor_date must fall on the template day_of_week")
		}
		template.RotationPeriodWeeks = req.RotationPeriodWeeks
		template.AnchorDate = &anchor
	case models.RotationFixed:
		if req.RotationPeriodWeeks != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rotation_period_weeks only applies to alternated rotation")
		}
	}

	if req.DeadlineTime != nil || req.WarningMessage != nil {
		if template.CategoryType != models.CategoryLaboratory {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_time and warning_message only apply to laboratories")
		}
	}
	if req.DeadlineTime != nil {
		if _, err := time.Parse(models.TimeLayout, *req.DeadlineTime); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_time must be HH:MM")
		}
		template.DeadlineTime = req.DeadlineTime
	}
	template.WarningMessage = req.WarningMessage

	if err := s.repo.Upsert(ctx, &template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert template")
	}

	if s.cache.Enabled() {
		if err := s.cache.InvalidateSlots(ctx, template.CategoryID); err != nil {
			s.logger.Warn("failed to invalidate slot cache", zap.Error(err))
		}
	}
	return &template, nil
}

// Get loads one template by id, archived definitions included, so staff can
// inspect which definition an older booking was generated from.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.ScheduleTemplate, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "template id is required")
	}
	template, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	return template, nil
}

// ListActive returns the active templates of a category ordered by weekday.
func (s *TemplateService) ListActive(ctx context.Context, categoryID string) ([]models.ScheduleTemplate, error) {
	if categoryID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category_id is required")
	}
	templates, err := s.repo.ListActive(ctx, categoryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

// List returns templates matching the filter, optionally including archived
// definitions.
func (s *TemplateService) List(ctx context.Context, filter models.TemplateFilter) ([]models.ScheduleTemplate, error) {
	templates, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}
