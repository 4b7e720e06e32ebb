package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chikiak/HospitalPro/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTemplateRepositoryUpsertArchivesPrevious(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_templates SET active = FALSE, archived_at = $1 WHERE category_id = $2 AND day_of_week = $3 AND active = TRUE")).
		WithArgs(sqlmock.AnyArg(), "cardiology", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_templates")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	template := &models.ScheduleTemplate{
		CategoryID:           "cardiology",
		CategoryType:         models.CategorySpecialty,
		Name:                 "Cardiology",
		DayOfWeek:            1,
		StartTime:            "09:00",
		SlotDurationMinutes:  30,
		MaxConcurrentPerSlot: 3,
		RotationType:         models.RotationFixed,
	}
	require.NoError(t, repo.Upsert(context.Background(), template))
	assert.NotEmpty(t, template.ID)
	assert.True(t, template.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "category_id", "category_type", "name", "day_of_week", "start_time", "slot_duration_minutes", "max_concurrent_per_slot", "rotation_type", "rotation_period_weeks", "anchor_date", "deadline_time", "warning_message", "active", "created_at", "archived_at"}).
		AddRow("tpl-1", "cardiology", "specialty", "Cardiology", 1, "09:00", 30, 3, "fixed", nil, nil, nil, nil, true, time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM schedule_templates WHERE category_id = \\$1 AND active = TRUE ORDER BY day_of_week ASC").
		WithArgs("cardiology").
		WillReturnRows(rows)

	templates, err := repo.ListActive(context.Background(), "cardiology")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "tpl-1", templates[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryCategoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTemplateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedule_templates WHERE category_id = $1")).
		WithArgs("cardiology").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	exists, err := repo.CategoryExists(context.Background(), "cardiology")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
