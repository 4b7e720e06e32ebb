package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Chikiak/HospitalPro/internal/models"
)

const medicalRecordColumns = `id, patient_id, registration_survey, entries, allergies, created_at, last_updated`

// MedicalRecordRepository provides persistence for patient medical records.
type MedicalRecordRepository struct {
	db *sqlx.DB
}

// NewMedicalRecordRepository creates a new medical record repository.
func NewMedicalRecordRepository(db *sqlx.DB) *MedicalRecordRepository {
	return &MedicalRecordRepository{db: db}
}

// Create stores a new medical record with an empty entry list.
func (r *MedicalRecordRepository) Create(ctx context.Context, record *models.MedicalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.LastUpdated = now
	if record.Entries == nil {
		record.Entries = []byte(`[]`)
	}

	const query = `INSERT INTO medical_records (id, patient_id, registration_survey, entries, allergies, created_at, last_updated)
		VALUES (:id, :patient_id, :registration_survey, :entries, :allergies, :created_at, :last_updated)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create medical record: %w", err)
	}
	return nil
}

// FindByPatientID loads the record for a patient.
func (r *MedicalRecordRepository) FindByPatientID(ctx context.Context, patientID string) (*models.MedicalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM medical_records WHERE patient_id = $1`, medicalRecordColumns)
	var record models.MedicalRecord
	if err := r.db.GetContext(ctx, &record, query, patientID); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateIntake replaces the registration survey and allergies fields.
func (r *MedicalRecordRepository) UpdateIntake(ctx context.Context, patientID string, survey []byte, allergies *string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE medical_records SET registration_survey = $1, allergies = $2, last_updated = $3 WHERE patient_id = $4`,
		survey, allergies, time.Now().UTC(), patientID); err != nil {
		return fmt.Errorf("update medical intake: %w", err)
	}
	return nil
}

// AppendEntry pushes one entry onto the record's JSON entry array.
func (r *MedicalRecordRepository) AppendEntry(ctx context.Context, patientID string, entry models.MedicalRecordEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal record entry: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE medical_records SET entries = COALESCE(entries, '[]'::jsonb) || $1::jsonb, last_updated = $2 WHERE patient_id = $3`,
		payload, time.Now().UTC(), patientID); err != nil {
		return fmt.Errorf("append record entry: %w", err)
	}
	return nil
}

// ListExportRows returns every patient joined with their medical data, for
// staff exports. A single left join keeps this one round trip.
func (r *MedicalRecordRepository) ListExportRows(ctx context.Context) ([]models.PatientExportRow, error) {
	const query = `SELECT u.id, u.dni, u.full_name, u.active, m.registration_survey, m.allergies
		FROM users u
		LEFT JOIN medical_records m ON m.patient_id = u.id
		WHERE u.role = 'PATIENT'
		ORDER BY u.dni ASC`
	var rows []models.PatientExportRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list patient export rows: %w", err)
	}
	return rows, nil
}
