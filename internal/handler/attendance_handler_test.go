package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	"github.com/dkenges/zhurnal-api/internal/service"
	"github.com/dkenges/zhurnal-api/pkg/response"
)

type fakeAttendanceLessons struct {
	lessons []models.LessonWithRecords
}

func (f *fakeAttendanceLessons) ListForClass(ctx context.Context, classID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	return f.lessons, nil
}

type fakeAttendanceStudents struct {
	students []models.Student
}

func (f *fakeAttendanceStudents) ListByClass(ctx context.Context, classID, teacherID string) ([]models.Student, error) {
	return f.students, nil
}

type fakeAttendanceClasses struct {
	classes map[string]*models.Class
}

func (f *fakeAttendanceClasses) FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error) {
	if class, ok := f.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func newAttendanceHandlerForTest() *AttendanceHandler {
	lessons := &fakeAttendanceLessons{lessons: []models.LessonWithRecords{
		{Lesson: models.Lesson{ID: "lesson-1"}, Records: []models.LessonRecord{
			{StudentID: "s1", Attendance: models.AttendancePresent},
			{StudentID: "s2", Attendance: models.AttendanceAbsent},
		}},
	}}
	students := &fakeAttendanceStudents{students: []models.Student{
		{ID: "s1", FirstName: "Aidana", LastName: "Bekova"},
		{ID: "s2", FirstName: "Timur", LastName: "Akhmetov"},
	}}
	classes := &fakeAttendanceClasses{classes: map[string]*models.Class{"class-1": {ID: "class-1"}}}
	svc := service.NewAttendanceService(lessons, students, classes, nil, zap.NewNop())
	return NewAttendanceHandler(svc)
}

func TestAttendanceHandlerSummary(t *testing.T) {
	handler := newAttendanceHandlerForTest()

	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/class-1/summary", nil)
	c.Params = gin.Params{{Key: "classId", Value: "class-1"}}

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)

	var summary models.AttendanceSummary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, 1, summary.LessonCount)
	assert.Equal(t, 1, summary.Totals[models.AttendancePresent])
	assert.Equal(t, 1, summary.Totals[models.AttendanceAbsent])
	assert.Len(t, summary.Students, 2)
}

func TestAttendanceHandlerSummaryUnknownClass(t *testing.T) {
	handler := newAttendanceHandlerForTest()

	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/missing/summary", nil)
	c.Params = gin.Params{{Key: "classId", Value: "missing"}}

	handler.Summary(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAttendanceHandlerExportCSV(t *testing.T) {
	handler := newAttendanceHandlerForTest()

	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/class-1/export?format=csv", nil)
	c.Params = gin.Params{{Key: "classId", Value: "class-1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "Bekova Aidana")
}

func TestAttendanceHandlerExportBadFormat(t *testing.T) {
	handler := newAttendanceHandlerForTest()

	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/class-1/export?format=docx", nil)
	c.Params = gin.Params{{Key: "classId", Value: "class-1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
