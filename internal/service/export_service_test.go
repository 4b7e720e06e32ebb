package service

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type mockExportRepo struct {
	record *models.MedicalRecord
	rows   []models.PatientExportRow
}

func (m *mockExportRepo) FindByPatientID(ctx context.Context, patientID string) (*models.MedicalRecord, error) {
	if m.record != nil && m.record.PatientID == patientID {
		return m.record, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportRepo) ListExportRows(ctx context.Context) ([]models.PatientExportRow, error) {
	return m.rows, nil
}

type mockExportUserRepo struct {
	user *models.User
}

func (m *mockExportUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user != nil && m.user.ID == id {
		return m.user, nil
	}
	return nil, sql.ErrNoRows
}

func TestExportServicePatientRosterCSV(t *testing.T) {
	allergies := "latex"
	records := &mockExportRepo{rows: []models.PatientExportRow{
		{DNI: "12345678", FullName: "Jane Roe", Active: true, Allergies: &allergies, RegistrationSurvey: []byte(`{"blood_type":"0+","smoker":false}`)},
		{DNI: "87654321", FullName: "John Roe", Active: false},
	}}
	svc := NewExportService(records, &mockExportUserRepo{}, zap.NewNop())

	payload, err := svc.PatientRosterCSV(context.Background(), staffClaims())
	require.NoError(t, err)

	out := string(payload)
	assert.Contains(t, out, "DNI,Full Name,Active,Allergies,Registration Survey")
	assert.Contains(t, out, "12345678,Jane Roe,yes,latex,blood_type: 0+; smoker: false")
	assert.Contains(t, out, "87654321,John Roe,no,,")
}

func TestExportServicePatientRosterCSVForbiddenForPatients(t *testing.T) {
	svc := NewExportService(&mockExportRepo{}, &mockExportUserRepo{}, zap.NewNop())

	_, err := svc.PatientRosterCSV(context.Background(), patientClaims("p1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServicePatientRosterPDF(t *testing.T) {
	records := &mockExportRepo{rows: []models.PatientExportRow{
		{DNI: "12345678", FullName: "Jane Roe", Active: true},
	}}
	svc := NewExportService(records, &mockExportUserRepo{}, zap.NewNop())

	payload, err := svc.PatientRosterPDF(context.Background(), staffClaims())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))

	_, err = svc.PatientRosterPDF(context.Background(), patientClaims("p1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceMedicalRecordPDF(t *testing.T) {
	records := &mockExportRepo{record: &models.MedicalRecord{
		ID:        "record-p1",
		PatientID: "p1",
		Entries:   []byte(`[{"entry_type":"consultation","specialty":"cardiology","doctor_name":"Dr. House","diagnosis":"all clear","timestamp":"2026-01-06T09:30:00Z"}]`),
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}}
	users := &mockExportUserRepo{user: &models.User{ID: "p1", DNI: "12345678", FullName: "Jane Roe"}}
	svc := NewExportService(records, users, zap.NewNop())

	payload, err := svc.MedicalRecordPDF(context.Background(), patientClaims("p1"), "p1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))

	_, err = svc.MedicalRecordPDF(context.Background(), patientClaims("p2"), "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceMedicalRecordPDFUnknownPatient(t *testing.T) {
	svc := NewExportService(&mockExportRepo{}, &mockExportUserRepo{}, zap.NewNop())

	_, err := svc.MedicalRecordPDF(context.Background(), staffClaims(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
