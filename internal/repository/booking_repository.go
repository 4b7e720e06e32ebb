package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Chikiak/HospitalPro/internal/models"
)

// ErrCapacityExhausted signals that the slot is fully booked at commit time.
var ErrCapacityExhausted = errors.New("slot capacity exhausted")

const bookingColumns = `id, patient_id, category_id, category_name, slot_datetime, status, notes, created_at, updated_at`

// SlotUsage aggregates active bookings per slot timestamp.
type SlotUsage struct {
	SlotDatetime time.Time `db:"slot_datetime"`
	Count        int       `db:"count"`
}

// BookingRepository provides persistence for the booking ledger.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateWithCapacity inserts a booking only if fewer than capacity
// non-cancelled bookings exist for the exact (category_id, slot_datetime).
// The count-then-insert runs under a transaction-scoped advisory lock keyed on
// the slot, so two concurrent requests for the last unit serialize and exactly
// one succeeds. Returns ErrCapacityExhausted when the slot is full.
func (r *BookingRepository) CreateWithCapacity(ctx context.Context, booking *models.Booking, capacity int) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	lockKey := fmt.Sprintf("%s|%s", booking.CategoryID, booking.SlotDatetime.UTC().Format(time.RFC3339))
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}

	var active int
	if err = tx.GetContext(ctx, &active,
		`SELECT COUNT(*) FROM bookings WHERE category_id = $1 AND slot_datetime = $2 AND status <> 'cancelled'`,
		booking.CategoryID, booking.SlotDatetime); err != nil {
		return fmt.Errorf("count active bookings: %w", err)
	}

	if active >= capacity {
		err = ErrCapacityExhausted
		return err
	}

	if _, err = tx.NamedExecContext(ctx,
		`INSERT INTO bookings (id, patient_id, category_id, category_name, slot_datetime, status, notes, created_at, updated_at)
		 VALUES (:id, :patient_id, :category_id, :category_name, :slot_datetime, :status, :notes, :created_at, :updated_at)`,
		booking); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}
	return nil
}

// ActiveCountsInWindow returns per-slot non-cancelled booking counts for a
// category between from and to inclusive.
func (r *BookingRepository) ActiveCountsInWindow(ctx context.Context, categoryID string, from, to time.Time) ([]SlotUsage, error) {
	const query = `SELECT slot_datetime, COUNT(*) AS count FROM bookings WHERE category_id = $1 AND slot_datetime >= $2 AND slot_datetime <= $3 AND status <> 'cancelled' GROUP BY slot_datetime`
	var usage []SlotUsage
	if err := r.db.SelectContext(ctx, &usage, query, categoryID, from, to); err != nil {
		return nil, fmt.Errorf("count bookings in window: %w", err)
	}
	return usage, nil
}

// FindByID loads a booking by id.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// List returns bookings with optional filtering and pagination.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	base := "FROM bookings WHERE 1=1"
	var args []interface{}

	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		base += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		base += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		base += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		base += fmt.Sprintf(" AND slot_datetime >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		base += fmt.Sprintf(" AND slot_datetime <= $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY slot_datetime ASC LIMIT %d OFFSET %d", bookingColumns, base, size, offset)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	return bookings, total, nil
}

// UpdateStatus persists a status transition.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// CompleteElapsed marks confirmed bookings whose slot time has passed as
// completed and returns how many rows changed. Used by the sweeper.
func (r *BookingRepository) CompleteElapsed(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'completed', updated_at = $1 WHERE status = 'confirmed' AND slot_datetime < $2`,
		time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("complete elapsed bookings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete elapsed bookings rows: %w", err)
	}
	return affected, nil
}
