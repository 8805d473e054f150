package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkenges/zhurnal-api/internal/models"
)

func newLessonMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func lessonRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "date", "topic", "homework", "subject_id", "class_id", "lesson_type", "max_score", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, time.Now(), "Topic", "", "subject-1", "class-1", models.LessonTypeClasswork, nil, time.Now(), time.Now())
	}
	return rows
}

func TestLessonRepositoryListForClassAttachesRecords(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery("SELECT l.id, l.date, .+ FROM lessons l\\s+JOIN classes c").
		WithArgs("class-1", "teacher-1").
		WillReturnRows(lessonRows("lesson-1", "lesson-2"))

	recordRows := sqlmock.NewRows([]string{"id", "lesson_id", "student_id", "grade", "attendance", "comment", "created_at", "updated_at"}).
		AddRow("rec-1", "lesson-1", "student-1", 5, models.AttendancePresent, nil, time.Now(), time.Now()).
		AddRow("rec-2", "lesson-1", "student-2", nil, models.AttendanceAbsent, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, lesson_id, student_id, grade, attendance, comment, created_at, updated_at FROM lesson_records WHERE lesson_id IN").
		WithArgs("lesson-1", "lesson-2").
		WillReturnRows(recordRows)

	lessons, err := repo.ListForClass(context.Background(), "class-1", "teacher-1", models.LessonRange{})
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Len(t, lessons[0].Records, 2)
	assert.Empty(t, lessons[1].Records)
	assert.NotNil(t, lessons[1].Records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryListForClassDateRange(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM lessons l\\s+JOIN classes c .+ AND l.date >= \\$3 AND l.date <= \\$4 ORDER BY l.date ASC").
		WithArgs("class-1", "teacher-1", start, end).
		WillReturnRows(lessonRows())

	lessons, err := repo.ListForClass(context.Background(), "class-1", "teacher-1", models.LessonRange{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Empty(t, lessons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryCreateWithRecords(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE classroom_id").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("student-1").AddRow("student-2"))
	mock.ExpectExec("INSERT INTO lessons").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Новая тема", "", "subject-1", "class-1", models.LessonTypeClasswork, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lesson_records").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "student-1", models.AttendancePresent, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lesson_records").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "student-2", models.AttendancePresent, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lesson := &models.Lesson{
		Date:       time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC),
		Topic:      "Новая тема",
		SubjectID:  "subject-1",
		ClassID:    "class-1",
		LessonType: models.LessonTypeClasswork,
	}
	id, created, err := repo.CreateWithRecords(context.Background(), lesson)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryCreateWithRecordsConflictReturnsExisting(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE classroom_id").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("student-1"))
	mock.ExpectExec("INSERT INTO lessons").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id FROM lessons WHERE subject_id").
		WithArgs("subject-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-lesson"))
	mock.ExpectRollback()

	lesson := &models.Lesson{
		Date:       time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC),
		SubjectID:  "subject-1",
		ClassID:    "class-1",
		LessonType: models.LessonTypeClasswork,
	}
	id, created, err := repo.CreateWithRecords(context.Background(), lesson)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "existing-lesson", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateWithRecordsClearsGrade(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lesson_records SET grade = \\$1, updated_at = \\$2 WHERE id = \\$3 AND lesson_id = \\$4").
		WithArgs(nil, sqlmock.AnyArg(), "rec-1", "lesson-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	patches := []models.RecordPatch{{ID: "rec-1", GradeSet: true}}
	err := repo.UpdateWithRecords(context.Background(), "lesson-1", models.LessonFieldPatch{}, patches)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateWithRecordsMissingRecordRollsBack(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	grade := 5
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lessons SET topic").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE lesson_records SET").
		WithArgs(grade, sqlmock.AnyArg(), "missing", "lesson-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	topic := "Повторение"
	patches := []models.RecordPatch{{ID: "missing", Grade: &grade, GradeSet: true}}
	err := repo.UpdateWithRecords(context.Background(), "lesson-1", models.LessonFieldPatch{Topic: &topic}, patches)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordMissing))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateWithRecordsNoopSkipsTransaction(t *testing.T) {
	db, mock, cleanup := newLessonMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	err := repo.UpdateWithRecords(context.Background(), "lesson-1", models.LessonFieldPatch{}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
