package models

import "time"

// CategoryType distinguishes medical specialties from laboratory services.
type CategoryType string

const (
	CategorySpecialty  CategoryType = "specialty"
	CategoryLaboratory CategoryType = "laboratory"
)

// RotationType controls how often a weekly template repeats.
type RotationType string

const (
	RotationFixed      RotationType = "fixed"
	RotationAlternated RotationType = "alternated"
)

// TimeLayout is the wire format for times of day in templates.
const TimeLayout = "15:04"

// ScheduleTemplate is a recurring weekly availability definition for a
// category. Exactly one active template exists per (category_id, day_of_week);
// superseded templates are archived, never deleted, so slots issued under an
// old definition keep their attribution.
type ScheduleTemplate struct {
	ID                   string       `db:"id" json:"id"`
	CategoryID           string       `db:"category_id" json:"category_id"`
	CategoryType         CategoryType `db:"category_type" json:"category_type"`
	Name                 string       `db:"name" json:"name"`
	DayOfWeek            int          `db:"day_of_week" json:"day_of_week"`
	StartTime            string       `db:"start_time" json:"start_time"`
	SlotDurationMinutes  int          `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	MaxConcurrentPerSlot int          `db:"max_concurrent_per_slot" json:"max_concurrent_per_slot"`
	RotationType         RotationType `db:"rotation_type" json:"rotation_type"`
	RotationPeriodWeeks  *int         `db:"rotation_period_weeks" json:"rotation_period_weeks,omitempty"`
	AnchorDate           *time.Time   `db:"anchor_date" json:"anchor_date,omitempty"`
	DeadlineTime         *string      `db:"deadline_time" json:"deadline_time,omitempty"`
	WarningMessage       *string      `db:"warning_message" json:"warning_message,omitempty"`
	Active               bool         `db:"active" json:"active"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	ArchivedAt           *time.Time   `db:"archived_at" json:"archived_at,omitempty"`
}

// TemplateFilter describes query params for listing templates.
type TemplateFilter struct {
	CategoryID      string
	CategoryType    CategoryType
	IncludeArchived bool
}

// WeekdayIndex maps a calendar date onto the template day_of_week encoding
// (0=Monday .. 6=Sunday).
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
