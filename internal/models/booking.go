package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// CanTransition reports whether a status change is legal.
// scheduled -> confirmed -> completed; scheduled|confirmed -> cancelled.
// cancelled and completed are terminal.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch s {
	case BookingScheduled:
		return to == BookingConfirmed || to == BookingCancelled
	case BookingConfirmed:
		return to == BookingCompleted || to == BookingCancelled
	default:
		return false
	}
}

// Booking is a confirmed reservation of one capacity unit of a slot.
// Cancelled rows are retained for the audit trail and free capacity.
type Booking struct {
	ID           string        `db:"id" json:"id"`
	PatientID    string        `db:"patient_id" json:"patient_id"`
	CategoryID   string        `db:"category_id" json:"category_id"`
	CategoryName string        `db:"category_name" json:"category_name"`
	SlotDatetime time.Time     `db:"slot_datetime" json:"slot_datetime"`
	Status       BookingStatus `db:"status" json:"status"`
	Notes        *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingFilter describes query params for listing bookings.
type BookingFilter struct {
	PatientID  string
	CategoryID string
	Status     BookingStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
