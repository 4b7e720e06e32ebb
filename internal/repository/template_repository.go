package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Chikiak/HospitalPro/internal/models"
)

const templateColumns = `id, category_id, category_type, name, day_of_week, start_time, slot_duration_minutes, max_concurrent_per_slot, rotation_type, rotation_period_weeks, anchor_date, deadline_time, warning_message, active, created_at, archived_at`

// TemplateRepository provides persistence for schedule templates.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Upsert archives the active template for (category_id, day_of_week) and
// inserts the replacement within one transaction. The archived row is kept so
// already-issued slots retain their generating definition.
func (r *TemplateRepository) Upsert(ctx context.Context, template *models.ScheduleTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	template.CreatedAt = now
	template.Active = true

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`UPDATE schedule_templates SET active = FALSE, archived_at = $1 WHERE category_id = $2 AND day_of_week = $3 AND active = TRUE`,
		now, template.CategoryID, template.DayOfWeek); err != nil {
		return fmt.Errorf("archive previous template: %w", err)
	}

	if _, err = tx.NamedExecContext(ctx,
		`INSERT INTO schedule_templates (id, category_id, category_type, name, day_of_week, start_time, slot_duration_minutes, max_concurrent_per_slot, rotation_type, rotation_period_weeks, anchor_date, deadline_time, warning_message, active, created_at)
		 VALUES (:id, :category_id, :category_type, :name, :day_of_week, :start_time, :slot_duration_minutes, :max_concurrent_per_slot, :rotation_type, :rotation_period_weeks, :anchor_date, :deadline_time, :warning_message, :active, :created_at)`,
		template); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert template: %w", err)
	}
	return nil
}

// ListActive returns the active templates for a category, one per weekday,
// ordered by day_of_week.
func (r *TemplateRepository) ListActive(ctx context.Context, categoryID string) ([]models.ScheduleTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_templates WHERE category_id = $1 AND active = TRUE ORDER BY day_of_week ASC`, templateColumns)
	var templates []models.ScheduleTemplate
	if err := r.db.SelectContext(ctx, &templates, query, categoryID); err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	return templates, nil
}

// List returns templates matching the filter, active first.
func (r *TemplateRepository) List(ctx context.Context, filter models.TemplateFilter) ([]models.ScheduleTemplate, error) {
	base := fmt.Sprintf(`SELECT %s FROM schedule_templates WHERE 1=1`, templateColumns)
	var args []interface{}

	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		base += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.CategoryType != "" {
		args = append(args, filter.CategoryType)
		base += fmt.Sprintf(" AND category_type = $%d", len(args))
	}
	if !filter.IncludeArchived {
		base += " AND active = TRUE"
	}
	base += " ORDER BY category_type ASC, category_id ASC, day_of_week ASC, active DESC"

	var templates []models.ScheduleTemplate
	if err := r.db.SelectContext(ctx, &templates, base, args...); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// FindByID loads a template by id.
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*models.ScheduleTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_templates WHERE id = $1`, templateColumns)
	var template models.ScheduleTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		return nil, err
	}
	return &template, nil
}

// CategoryExists reports whether any template (active or archived) was ever
// defined for the category.
func (r *TemplateRepository) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM schedule_templates WHERE category_id = $1`, categoryID); err != nil {
		return false, fmt.Errorf("check category exists: %w", err)
	}
	return count > 0, nil
}
