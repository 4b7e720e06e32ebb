package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/repository"
	"github.com/Chikiak/HospitalPro/pkg/config"
	appErrors "github.com/Chikiak/HospitalPro/pkg/errors"
)

type mockTemplateRepo struct {
	templates []models.ScheduleTemplate
	upserted  []models.ScheduleTemplate
	exists    bool
	existsErr error
}

func (m *mockTemplateRepo) Upsert(ctx context.Context, template *models.ScheduleTemplate) error {
	if template.ID == "" {
		template.ID = "generated"
	}
	template.Active = true
	m.upserted = append(m.upserted, *template)
	return nil
}

func (m *mockTemplateRepo) ListActive(ctx context.Context, categoryID string) ([]models.ScheduleTemplate, error) {
	var out []models.ScheduleTemplate
	for _, tpl := range m.templates {
		if tpl.CategoryID == categoryID && tpl.Active {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (m *mockTemplateRepo) List(ctx context.Context, filter models.TemplateFilter) ([]models.ScheduleTemplate, error) {
	return m.templates, nil
}

func (m *mockTemplateRepo) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	return m.exists, m.existsErr
}

func (m *mockTemplateRepo) FindByID(ctx context.Context, id string) (*models.ScheduleTemplate, error) {
	for _, tpl := range m.templates {
		if tpl.ID == id {
			cp := tpl
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

type mockSlotBookingRepo struct {
	usage []repository.SlotUsage
}

func (m *mockSlotBookingRepo) ActiveCountsInWindow(ctx context.Context, categoryID string, from, to time.Time) ([]repository.SlotUsage, error) {
	return m.usage, nil
}

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func fixedClock(iso string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func newSlotService(templates *mockTemplateRepo, bookings *mockSlotBookingRepo) *SlotService {
	return NewSlotService(templates, bookings, nil, config.SlotsConfig{
		MaxWindowDays:     90,
		DefaultWindowDays: 14,
	}, zap.NewNop())
}

func TestSlotServiceFixedWeeklyTemplate(t *testing.T) {
	// Tuesday template, queried over two weeks: exactly two slot entries.
	templates := &mockTemplateRepo{
		exists: true,
		templates: []models.ScheduleTemplate{{
			ID:                   "tpl-1",
			CategoryID:           "cardiology",
			CategoryType:         models.CategorySpecialty,
			Name:                 "Cardiology",
			DayOfWeek:            1,
			StartTime:            "09:00",
			SlotDurationMinutes:  30,
			MaxConcurrentPerSlot: 3,
			RotationType:         models.RotationFixed,
			Active:               true,
		}},
	}
	svc := newSlotService(templates, &mockSlotBookingRepo{})

	slots, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "cardiology",
		From:       "2026-01-05",
		To:         "2026-01-18",
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC), slots[0].SlotDatetime)
	assert.Equal(t, time.Date(2026, 1, 13, 9, 0, 0, 0, time.UTC), slots[1].SlotDatetime)
	assert.Equal(t, 3, slots[0].CapacityRemaining)
	assert.True(t, slots[0].SlotDatetime.Before(slots[1].SlotDatetime))
}

func TestSlotServiceAlternatedRotation(t *testing.T) {
	// Every-other-Tuesday template anchored on 2026-01-06: the week of the
	// 13th is skipped, the 20th applies again.
	templates := &mockTemplateRepo{
		exists: true,
		templates: []models.ScheduleTemplate{{
			ID:                   "tpl-1",
			CategoryID:           "dermatology",
			CategoryType:         models.CategorySpecialty,
			Name:                 "Dermatology",
			DayOfWeek:            1,
			StartTime:            "10:00",
			SlotDurationMinutes:  20,
			MaxConcurrentPerSlot: 2,
			RotationType:         models.RotationAlternated,
			RotationPeriodWeeks:  intPtr(2),
			AnchorDate:           timePtr(time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)),
			Active:               true,
		}},
	}
	svc := newSlotService(templates, &mockSlotBookingRepo{})

	slots, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "dermatology",
		From:       "2026-01-05",
		To:         "2026-01-25",
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC), slots[0].SlotDatetime)
	assert.Equal(t, time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC), slots[1].SlotDatetime)

	// Every produced date sits a whole multiple of the period after the anchor.
	for _, slot := range slots {
		date := slot.SlotDatetime.Truncate(24 * time.Hour)
		days := int(date.Sub(time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)).Hours() / 24)
		assert.Zero(t, days%(2*7))
	}
}

func TestSlotServiceAlternatedBeforeAnchor(t *testing.T) {
	templates := &mockTemplateRepo{
		exists: true,
		templates: []models.ScheduleTemplate{{
			ID:                   "tpl-1",
			CategoryID:           "dermatology",
			Name:                 "Dermatology",
			DayOfWeek:            1,
			StartTime:            "10:00",
			SlotDurationMinutes:  20,
			MaxConcurrentPerSlot: 2,
			RotationType:         models.RotationAlternated,
			RotationPeriodWeeks:  intPtr(2),
			AnchorDate:           timePtr(time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)),
			Active:               true,
		}},
	}
	svc := newSlotService(templates, &mockSlotBookingRepo{})

	slots, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "dermatology",
		From:       "2026-01-05",
		To:         "2026-01-19",
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotServiceCapacitySubtraction(t *testing.T) {
	slotAt := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	templates := &mockTemplateRepo{
		exists: true,
		templates: []models.ScheduleTemplate{{
			ID:                   "tpl-1",
			CategoryID:           "cardiology",
			Name:                 "Cardiology",
			DayOfWeek:            1,
			StartTime:            "09:00",
			SlotDurationMinutes:  30,
			MaxConcurrentPerSlot: 3,
			RotationType:         models.RotationFixed,
			Active:               true,
		}},
	}
	bookings := &mockSlotBookingRepo{usage: []repository.SlotUsage{{SlotDatetime: slotAt, Count: 2}}}
	svc := newSlotService(templates, bookings)

	slots, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "cardiology",
		From:       "2026-01-06",
		To:         "2026-01-06",
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 1, slots[0].CapacityRemaining)
}

func TestSlotServiceFullSlotOmitted(t *testing.T) {
	slotAt := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	templates := &mockTemplateRepo{
		exists: true,
		templates: []models.ScheduleTemplate{{
			ID:                   "tpl-1",
			CategoryID:           "cardiology",
			Name:                 "Cardiology",
			DayOfWeek:            1,
			StartTime:            "09:00",
			SlotDurationMinutes:  30,
			MaxConcurrentPerSlot: 2,
			RotationType:         models.RotationFixed,
			Active:               true,
		}},
	}
	bookings := &mockSlotBookingRepo{usage: []repository.SlotUsage{{SlotDatetime: slotAt, Count: 2}}}
	svc := newSlotService(templates, bookings)

	slots, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "cardiology",
		From:       "2026-01-06",
		To:         "2026-01-06",
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotServiceLabMetadataAttached(t *testing.T) {
	deadline := "10:30"
	warning := "Fast for 8 hours before blood work"
	templates := &mockTemplateRepo{
		exists: true,
		templates: []models.ScheduleTemplate{{
			ID:                   "tpl-1",
			CategoryID:           "blood-lab",
			CategoryType:         models.CategoryLaboratory,
			Name:                 "Blood Lab",
			DayOfWeek:            1,
			StartTime:            "07:00",
			SlotDurationMinutes:  15,
			MaxConcurrentPerSlot: 10,
			RotationType:         models.RotationFixed,
			DeadlineTime:         &deadline,
			WarningMessage:       &warning,
			Active:               true,
		}},
	}
	svc := newSlotService(templates, &mockSlotBookingRepo{})

	slots, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "blood-lab",
		From:       "2026-01-06",
		To:         "2026-01-06",
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.NotNil(t, slots[0].DeadlineTime)
	assert.Equal(t, deadline, *slots[0].DeadlineTime)
	require.NotNil(t, slots[0].WarningMessage)
	assert.Equal(t, warning, *slots[0].WarningMessage)
}

func TestSlotServiceInvalidRange(t *testing.T) {
	svc := newSlotService(&mockTemplateRepo{exists: true}, &mockSlotBookingRepo{})

	_, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "cardiology",
		From:       "2026-01-10",
		To:         "2026-01-05",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceWindowTooLarge(t *testing.T) {
	svc := newSlotService(&mockTemplateRepo{exists: true}, &mockSlotBookingRepo{})

	_, err := svc.Generate(context.Background(), GenerateSlotsRequest{
		CategoryID: "cardiology",
		From:       "2026-01-01",
		To:         "2026-06-01",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestSlotServiceUnknownCategory(t *testing.T) {
	svc := newSlotService(&mockTemplateRepo{exists: false}, &mockSlotBookingRepo{})

	_, err := svc.Generate(context.Background(), GenerateSlotsRequest{CategoryID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
