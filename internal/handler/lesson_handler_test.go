package handler

import (
	"bytes"
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

	"github.com/dkenges/zhurnal-api/internal/middleware"
	"github.com/dkenges/zhurnal-api/internal/models"
	"github.com/dkenges/zhurnal-api/internal/service"
	"github.com/dkenges/zhurnal-api/pkg/response"
)

type fakeLessonRepo struct {
	lessons map[string]*models.Lesson
	fields  models.LessonFieldPatch
	patches []models.RecordPatch
}

func (f *fakeLessonRepo) ListForClass(ctx context.Context, classID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	return []models.LessonWithRecords{}, nil
}

func (f *fakeLessonRepo) ListForSubject(ctx context.Context, subjectID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	return []models.LessonWithRecords{}, nil
}

func (f *fakeLessonRepo) FindOwned(ctx context.Context, id, teacherID string) (*models.Lesson, error) {
	if lesson, ok := f.lessons[id]; ok {
		return lesson, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeLessonRepo) FindWithRecords(ctx context.Context, id string) (*models.LessonWithRecords, error) {
	if lesson, ok := f.lessons[id]; ok {
		return &models.LessonWithRecords{Lesson: *lesson, Records: []models.LessonRecord{}}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeLessonRepo) CreateWithRecords(ctx context.Context, lesson *models.Lesson) (string, bool, error) {
	lesson.ID = "lesson-1"
	if f.lessons == nil {
		f.lessons = map[string]*models.Lesson{}
	}
	f.lessons[lesson.ID] = lesson
	return lesson.ID, true, nil
}

func (f *fakeLessonRepo) UpdateWithRecords(ctx context.Context, lessonID string, fields models.LessonFieldPatch, patches []models.RecordPatch) error {
	f.fields = fields
	f.patches = patches
	return nil
}

type fakeSubjectFinder struct {
	subjects map[string]*models.Subject
}

func (f *fakeSubjectFinder) FindOwned(ctx context.Context, id, teacherID string) (*models.Subject, error) {
	if subject, ok := f.subjects[id]; ok {
		return subject, nil
	}
	return nil, sql.ErrNoRows
}

type fakeClassFinder struct {
	classes map[string]*models.Class
}

func (f *fakeClassFinder) FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error) {
	if class, ok := f.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func authedContext(t *testing.T, rec *httptest.ResponseRecorder) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(rec)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Email: "anna@example.com", Name: "Anna Ivanova"})
	return c
}

func TestLessonHandlerCreateReturns201(t *testing.T) {
	repo := &fakeLessonRepo{}
	subjects := &fakeSubjectFinder{subjects: map[string]*models.Subject{"subject-1": {ID: "subject-1", ClassID: "class-1"}}}
	classes := &fakeClassFinder{classes: map[string]*models.Class{"class-1": {ID: "class-1"}}}
	svc := service.NewLessonService(repo, subjects, classes, nil, 10, nil, zap.NewNop())
	handler := NewLessonHandler(svc)

	body := bytes.NewBufferString(`{"date":"2024-09-02","subjectId":"subject-1","classId":"class-1"}`)
	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/lessons", body)
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data)
}

func TestLessonHandlerUpdateEmptyGradeClears(t *testing.T) {
	repo := &fakeLessonRepo{lessons: map[string]*models.Lesson{"lesson-1": {ID: "lesson-1", ClassID: "class-1"}}}
	svc := service.NewLessonService(repo, &fakeSubjectFinder{}, &fakeClassFinder{}, nil, 10, nil, zap.NewNop())
	handler := NewLessonHandler(svc)

	body := bytes.NewBufferString(`{"records":[{"id":"rec-1","grade":""}]}`)
	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodPatch, "/lessons/lesson-1", body)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "lesson-1"}}

	handler.Update(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.patches, 1)
	assert.True(t, repo.patches[0].GradeSet)
	assert.Nil(t, repo.patches[0].Grade)
}

func TestLessonHandlerUpdateUnknownLessonReturns404(t *testing.T) {
	svc := service.NewLessonService(&fakeLessonRepo{}, &fakeSubjectFinder{}, &fakeClassFinder{}, nil, 10, nil, zap.NewNop())
	handler := NewLessonHandler(svc)

	body := bytes.NewBufferString(`{"topic":"Повторение"}`)
	rec := httptest.NewRecorder()
	c := authedContext(t, rec)
	c.Request = httptest.NewRequest(http.MethodPatch, "/lessons/missing", body)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Update(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLessonHandlerRequiresClaims(t *testing.T) {
	svc := service.NewLessonService(&fakeLessonRepo{}, &fakeSubjectFinder{}, &fakeClassFinder{}, nil, 10, nil, zap.NewNop())
	handler := NewLessonHandler(svc)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/lessons/class/class-1", nil)
	c.Params = gin.Params{{Key: "classId", Value: "class-1"}}

	handler.ListForClass(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
