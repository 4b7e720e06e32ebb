package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
	"github.com/Chikiak/HospitalPro/pkg/export"
)

type exportRecordRepository interface {
	FindByPatientID(ctx context.Context, patientID string) (*models.MedicalRecord, error)
	ListExportRows(ctx context.Context) ([]models.PatientExportRow, error)
}

type exportUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ExportService renders patient data as downloadable documents.
type ExportService struct {
	records exportRecordRepository
	users   exportUserRepository
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService instantiates ExportService.
func NewExportService(records exportRecordRepository, users exportUserRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		records: records,
		users:   users,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// PatientRosterCSV renders every patient with their intake data. Staff only,
// enforced at the routes.
func (s *ExportService) PatientRosterCSV(ctx context.Context, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RolePatient {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}

	rows, err := s.records.ListExportRows(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patients")
	}

	payload, err := s.csv.Render(rosterDataset(rows))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, nil
}

// PatientRosterPDF renders the same roster as a printable table. Staff only,
// enforced at the routes.
func (s *ExportService) PatientRosterPDF(ctx context.Context, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RolePatient {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff role required")
	}

	rows, err := s.records.ListExportRows(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patients")
	}

	payload, err := s.pdf.RenderTable(rosterDataset(rows), "Patient Roster")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, nil
}

func rosterDataset(rows []models.PatientExportRow) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"DNI", "Full Name", "Active", "Allergies", "Registration Survey"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		active := "no"
		if row.Active {
			active = "yes"
		}
		allergies := ""
		if row.Allergies != nil {
			allergies = *row.Allergies
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"DNI":                 row.DNI,
			"Full Name":           row.FullName,
			"Active":              active,
			"Allergies":           allergies,
			"Registration Survey": flattenSurvey(row.RegistrationSurvey),
		})
	}
	return dataset
}

// MedicalRecordPDF renders one patient's full history. Patients may only
// export their own record.
func (s *ExportService) MedicalRecordPDF(ctx context.Context, actor *models.JWTClaims, patientID string) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RolePatient && actor.UserID != patientID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "record belongs to another patient")
	}

	user, err := s.users.FindByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}

	record, err := s.records.FindByPatientID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medical record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medical record")
	}

	sections := []export.PDFSection{
		{
			Title: "Patient",
			Lines: []export.PDFLine{
				{Label: "Name", Value: user.FullName},
				{Label: "DNI", Value: user.DNI},
				{Label: "Record created", Value: record.CreatedAt.Format("2006-01-02")},
			},
		},
	}

	intake := export.PDFSection{Title: "Intake"}
	if record.Allergies != nil && *record.Allergies != "" {
		intake.Lines = append(intake.Lines, export.PDFLine{Label: "Allergies", Value: *record.Allergies})
	}
	if survey := flattenSurvey(record.RegistrationSurvey); survey != "" {
		intake.Lines = append(intake.Lines, export.PDFLine{Label: "Survey", Value: survey})
	}
	if len(intake.Lines) > 0 {
		sections = append(sections, intake)
	}

	var entries []models.MedicalRecordEntry
	if len(record.Entries) > 0 {
		if err := json.Unmarshal(record.Entries, &entries); err != nil {
			s.logger.Warn("malformed record entries", zap.String("patient_id", patientID), zap.Error(err))
		}
	}
	for _, entry := range entries {
		section := export.PDFSection{
			Title: fmt.Sprintf("%s (%s)", entryTitle(entry.EntryType), entry.Timestamp.Format("2006-01-02 15:04")),
		}
		if entry.Specialty != "" {
			section.Lines = append(section.Lines, export.PDFLine{Label: "Specialty", Value: entry.Specialty})
		}
		if entry.DoctorName != "" {
			section.Lines = append(section.Lines, export.PDFLine{Label: "Attended by", Value: entry.DoctorName})
		}
		if entry.Diagnosis != "" {
			section.Lines = append(section.Lines, export.PDFLine{Label: "Diagnosis", Value: entry.Diagnosis})
		}
		if entry.Results != "" {
			section.Lines = append(section.Lines, export.PDFLine{Label: "Results", Value: entry.Results})
		}
		if entry.Notes != "" {
			section.Lines = append(section.Lines, export.PDFLine{Label: "Notes", Value: entry.Notes})
		}
		sections = append(sections, section)
	}

	payload, err := s.pdf.RenderDocument(fmt.Sprintf("Medical Record - %s", user.FullName), sections)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, nil
}

func entryTitle(t models.MedicalRecordEntryType) string {
	if t == models.EntryLabResult {
		return "Laboratory result"
	}
	return "Consultation"
}

// flattenSurvey renders a JSON object as "key: value; key: value" with stable
// key order, good enough for tabular exports.
func flattenSurvey(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var survey map[string]interface{}
	if err := json.Unmarshal(raw, &survey); err != nil || len(survey) == 0 {
		return ""
	}
	keys := make([]string, 0, len(survey))
	for k := range survey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s: %v", k, survey[k])
	}
	return out
}
