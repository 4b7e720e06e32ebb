package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Chikiak/HospitalPro/internal/models"
)

// AllowedPersonRepository manages the DNI registration whitelist.
type AllowedPersonRepository struct {
	db *sqlx.DB
}

// NewAllowedPersonRepository creates a new whitelist repository.
func NewAllowedPersonRepository(db *sqlx.DB) *AllowedPersonRepository {
	return &AllowedPersonRepository{db: db}
}

// FindByDNI loads a whitelist row, or sql.ErrNoRows when absent.
func (r *AllowedPersonRepository) FindByDNI(ctx context.Context, dni string) (*models.AllowedPerson, error) {
	const query = `SELECT id, dni, full_name, is_registered FROM allowed_persons WHERE dni = $1`
	var person models.AllowedPerson
	if err := r.db.GetContext(ctx, &person, query, dni); err != nil {
		return nil, err
	}
	return &person, nil
}

// IsDNIAllowed reports whether the DNI may register.
func (r *AllowedPersonRepository) IsDNIAllowed(ctx context.Context, dni string) (bool, error) {
	_, err := r.FindByDNI(ctx, dni)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check allowed dni: %w", err)
	}
	return true, nil
}

// MarkRegistered flags a whitelist row once the account is created.
func (r *AllowedPersonRepository) MarkRegistered(ctx context.Context, dni string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE allowed_persons SET is_registered = TRUE WHERE dni = $1`, dni); err != nil {
		return fmt.Errorf("mark dni registered: %w", err)
	}
	return nil
}
