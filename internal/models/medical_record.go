package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MedicalRecordEntryType identifies the kind of a record entry.
type MedicalRecordEntryType string

const (
	EntryConsultation MedicalRecordEntryType = "consultation"
	EntryLabResult    MedicalRecordEntryType = "lab_result"
)

// MedicalRecordEntry is one consultation or laboratory result appended to a
// patient record. Entries are immutable once written.
type MedicalRecordEntry struct {
	EntryType  MedicalRecordEntryType `json:"entry_type"`
	Specialty  string                 `json:"specialty,omitempty"`
	DoctorName string                 `json:"doctor_name,omitempty"`
	Diagnosis  string                 `json:"diagnosis,omitempty"`
	Results    string                 `json:"results,omitempty"`
	Notes      string                 `json:"notes,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// MedicalRecord is the formal medical history of a patient: the registration
// survey captured at signup plus an append-only entry list. Both JSON columns
// are stored as-is to keep the intake form flexible.
type MedicalRecord struct {
	ID                 string         `db:"id" json:"id"`
	PatientID          string         `db:"patient_id" json:"patient_id"`
	RegistrationSurvey types.JSONText `db:"registration_survey" json:"registration_survey,omitempty"`
	Entries            types.JSONText `db:"entries" json:"entries"`
	Allergies          *string        `db:"allergies" json:"allergies,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	LastUpdated        time.Time      `db:"last_updated" json:"last_updated"`
}

// PatientExportRow flattens a patient and their medical data for staff exports.
type PatientExportRow struct {
	ID                 string         `db:"id" json:"id"`
	DNI                string         `db:"dni" json:"dni"`
	FullName           string         `db:"full_name" json:"full_name"`
	Active             bool           `db:"active" json:"active"`
	RegistrationSurvey types.JSONText `db:"registration_survey" json:"registration_survey,omitempty"`
	Allergies          *string        `db:"allergies" json:"allergies,omitempty"`
}
