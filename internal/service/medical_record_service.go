package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type medicalRecordRepository interface {
	FindByPatientID(ctx context.Context, patientID string) (*models.MedicalRecord, error)
	UpdateIntake(ctx context.Context, patientID string, survey []byte, allergies *string) error
	AppendEntry(ctx context.Context, patientID string, entry models.MedicalRecordEntry) error
}

// UpdateIntakeRequest replaces a patient's registration survey and allergies.
type UpdateIntakeRequest struct {
	RegistrationSurvey map[string]interface{} `json:"registration_survey" validate:"required"`
	Allergies          *string                `json:"allergies"`
}

// AddEntryRequest appends one consultation or lab result to a record.
type AddEntryRequest struct {
	EntryType string `json:"entry_type" validate:"required,oneof=consultation lab_result"`
	Specialty string `json:"specialty" validate:"max=100"`
	Diagnosis string `json:"diagnosis" validate:"max=2000"`
	Results   string `json:"results" validate:"max=2000"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// MedicalRecordService manages patient medical histories. Patients read and
// update their own intake data; entries are written by staff only.
type MedicalRecordService struct {
	records   medicalRecordRepository
	audits    bookingAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewMedicalRecordService instantiates MedicalRecordService.
func NewMedicalRecordService(records medicalRecordRepository, audits bookingAuditRepository, validate *validator.Validate, logger *zap.Logger) *MedicalRecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicalRecordService{records: records, audits: audits, validator: validate, logger: logger, now: time.Now}
}

// Get loads a patient's record. Patients may only read their own.
func (s *MedicalRecordService) Get(ctx context.Context, actor *models.JWTClaims, patientID string) (*models.MedicalRecord, error) {
	if err := s.authorize(actor, patientID); err != nil {
		return nil, err
	}
	record, err := s.records.FindByPatientID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medical record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medical record")
	}
	return record, nil
}

// UpdateIntake replaces the registration survey and allergies of a record.
func (s *MedicalRecordService) UpdateIntake(ctx context.Context, actor *models.JWTClaims, patientID string, req UpdateIntakeRequest) (*models.MedicalRecord, error) {
	if err := s.authorize(actor, patientID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid intake payload")
	}

	if _, err := s.records.FindByPatientID(ctx, patientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medical record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medical record")
	}

	survey, err := json.Marshal(req.RegistrationSurvey)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "registration_survey is not valid JSON")
	}
	if err := s.records.UpdateIntake(ctx, patientID, survey, req.Allergies); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update intake")
	}

	s.audit(ctx, actor, patientID)
	return s.records.FindByPatientID(ctx, patientID)
}

// AddEntry appends an immutable entry to a patient record. Staff only,
// enforced at the routes and double-checked here.
func (s *MedicalRecordService) AddEntry(ctx context.Context, actor *models.JWTClaims, patientID string, req AddEntryRequest) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RolePatient {
		return appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry payload")
	}

	if _, err := s.records.FindByPatientID(ctx, patientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "medical record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medical record")
	}

	entry := models.MedicalRecordEntry{
		EntryType:  models.MedicalRecordEntryType(req.EntryType),
		Specialty:  req.Specialty,
		DoctorName: actor.FullName,
		Diagnosis:  req.Diagnosis,
		Results:    req.Results,
		Notes:      req.Notes,
		Timestamp:  s.now().UTC(),
	}
	if err := s.records.AppendEntry(ctx, patientID, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append entry")
	}

	s.audit(ctx, actor, patientID)
	return nil
}

func (s *MedicalRecordService) authorize(actor *models.JWTClaims, patientID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if patientID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "patient id is required")
	}
	if actor.Role == models.RolePatient && actor.UserID != patientID {
		return appErrors.Clone(appErrors.ErrForbidden, "record belongs to another patient")
	}
	return nil
}

func (s *MedicalRecordService) audit(ctx context.Context, actor *models.JWTClaims, patientID string) {
	if s.audits == nil {
		return
	}
	userID := actor.UserID
	if err := s.audits.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionRecordUpdate,
		Resource:   "medical_records",
		ResourceID: &patientID,
	}); err != nil {
		s.logger.Warn("failed to write record audit log", zap.Error(err))
	}
}
