package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Chikiak/HospitalPro/internal/service"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
	"github.com/Chikiak/HospitalPro/pkg/response"
)

// PatientHandler exposes medical record and export endpoints.
type PatientHandler struct {
	records *service.MedicalRecordService
	exports *service.ExportService
}

// NewPatientHandler creates a new handler.
func NewPatientHandler(records *service.MedicalRecordService, exports *service.ExportService) *PatientHandler {
	return &PatientHandler{records: records, exports: exports}
}

// GetRecord godoc
// @Summary Get medical record
// @Description Load a patient's medical history; patients only see their own
// @Tags Patients
// @Produce json
// @Param id path string true "Patient id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /patients/{id}/medical-record [get]
func (h *PatientHandler) GetRecord(c *gin.Context) {
	record, err := h.records.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UpdateIntake godoc
// @Summary Update intake data
// @Description Replace the registration survey and allergies of a record
// @Tags Patients
// @Accept json
// @Produce json
// @Param id path string true "Patient id"
// @Param payload body service.UpdateIntakeRequest true "Intake payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /patients/{id}/medical-record [patch]
func (h *PatientHandler) UpdateIntake(c *gin.Context) {
	var req service.UpdateIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid intake payload"))
		return
	}

	record, err := h.records.UpdateIntake(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// AddEntry godoc
// @Summary Append a record entry
// @Description Staff appends one consultation or lab result to a record
// @Tags Patients
// @Accept json
// @Produce json
// @Param id path string true "Patient id"
// @Param payload body service.AddEntryRequest true "Entry payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /patients/{id}/medical-record/entries [post]
func (h *PatientHandler) AddEntry(c *gin.Context) {
	var req service.AddEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}

	if err := h.records.AddEntry(c.Request.Context(), claimsFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportRecordPDF godoc
// @Summary Export medical record as PDF
// @Tags Patients
// @Produce application/pdf
// @Param id path string true "Patient id"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /patients/{id}/medical-record/pdf [get]
func (h *PatientHandler) ExportRecordPDF(c *gin.Context) {
	payload, err := h.exports.MedicalRecordPDF(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Blob(c, "application/pdf", "medical-record.pdf", payload)
}

// ExportRosterPDF godoc
// @Summary Export patient roster as PDF
// @Description Staff downloads the patient roster as a printable table
// @Tags Patients
// @Produce application/pdf
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /patients/export/pdf [get]
func (h *PatientHandler) ExportRosterPDF(c *gin.Context) {
	payload, err := h.exports.PatientRosterPDF(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Blob(c, "application/pdf", "patients.pdf", payload)
}

// ExportRosterCSV godoc
// @Summary Export patient roster as CSV
// @Description Staff downloads every patient with their intake data
// @Tags Patients
// @Produce text/csv
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /patients/export [get]
func (h *PatientHandler) ExportRosterCSV(c *gin.Context) {
	payload, err := h.exports.PatientRosterCSV(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Blob(c, "text/csv", "patients.csv", payload)
}
