package models

import "time"

// Slot is a concrete bookable instance derived from a ScheduleTemplate for a
// specific calendar date. Slots are not persisted; a booking references one by
// (category_id, slot_datetime).
type Slot struct {
	CategoryID        string       `json:"category_id"`
	CategoryType      CategoryType `json:"category_type"`
	CategoryName      string       `json:"category_name"`
	TemplateID        string       `json:"template_id"`
	SlotDatetime      time.Time    `json:"slot_datetime"`
	CapacityRemaining int          `json:"capacity_remaining"`
	DeadlineTime      *string      `json:"deadline_time,omitempty"`
	WarningMessage    *string      `json:"warning_message,omitempty"`
}
