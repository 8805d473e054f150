package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	"github.com/dkenges/zhurnal-api/internal/repository"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
)

type mockLessonRepo struct {
	lessons       map[string]*models.Lesson
	createdLesson *models.Lesson
	created       bool
	fields        models.LessonFieldPatch
	patches       []models.RecordPatch
	updateErr     error
	listed        []models.LessonWithRecords
}

func (m *mockLessonRepo) ListForClass(ctx context.Context, classID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	return m.listed, nil
}

func (m *mockLessonRepo) ListForSubject(ctx context.Context, subjectID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error) {
	return m.listed, nil
}

func (m *mockLessonRepo) FindOwned(ctx context.Context, id, teacherID string) (*models.Lesson, error) {
	if lesson, ok := m.lessons[id]; ok {
		return lesson, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLessonRepo) FindWithRecords(ctx context.Context, id string) (*models.LessonWithRecords, error) {
	if lesson, ok := m.lessons[id]; ok {
		return &models.LessonWithRecords{Lesson: *lesson, Records: []models.LessonRecord{}}, nil
	}
	if m.createdLesson != nil && m.createdLesson.ID == id {
		return &models.LessonWithRecords{Lesson: *m.createdLesson, Records: []models.LessonRecord{}}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLessonRepo) CreateWithRecords(ctx context.Context, lesson *models.Lesson) (string, bool, error) {
	lesson.ID = "lesson-1"
	m.createdLesson = lesson
	m.created = true
	return lesson.ID, true, nil
}

func (m *mockLessonRepo) UpdateWithRecords(ctx context.Context, lessonID string, fields models.LessonFieldPatch, patches []models.RecordPatch) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.fields = fields
	m.patches = patches
	return nil
}

type mockSubjectFinder struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectFinder) FindOwned(ctx context.Context, id, teacherID string) (*models.Subject, error) {
	if subject, ok := m.subjects[id]; ok {
		return subject, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassFinder struct {
	classes map[string]*models.Class
}

func (m *mockClassFinder) FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error) {
	if class, ok := m.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func newLessonService(repo *mockLessonRepo, subjects *mockSubjectFinder, classes *mockClassFinder) *LessonService {
	return NewLessonService(repo, subjects, classes, nil, 10, validator.New(), zap.NewNop())
}

func TestLessonServiceCreateDefaults(t *testing.T) {
	repo := &mockLessonRepo{}
	subjects := &mockSubjectFinder{subjects: map[string]*models.Subject{"subject-1": {ID: "subject-1", ClassID: "class-1"}}}
	classes := &mockClassFinder{classes: map[string]*models.Class{"class-1": {ID: "class-1"}}}
	svc := newLessonService(repo, subjects, classes)

	lesson, created, err := svc.Create(context.Background(), "teacher-1", CreateLessonRequest{
		Date: "2024-09-02", SubjectID: "subject-1", ClassID: "class-1",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Новая тема", lesson.Topic)
	assert.Equal(t, models.LessonTypeClasswork, lesson.LessonType)
	assert.Empty(t, lesson.Homework)
	assert.Nil(t, lesson.MaxScore)
}

func TestLessonServiceCreateSubjectClassMismatch(t *testing.T) {
	repo := &mockLessonRepo{}
	subjects := &mockSubjectFinder{subjects: map[string]*models.Subject{"subject-1": {ID: "subject-1", ClassID: "other-class"}}}
	classes := &mockClassFinder{}
	svc := newLessonService(repo, subjects, classes)

	_, _, err := svc.Create(context.Background(), "teacher-1", CreateLessonRequest{
		Date: "2024-09-02", SubjectID: "subject-1", ClassID: "class-1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErr.Code)
	assert.False(t, repo.created)
}

func TestLessonServiceCreateUnknownSubject(t *testing.T) {
	svc := newLessonService(&mockLessonRepo{}, &mockSubjectFinder{}, &mockClassFinder{})

	_, _, err := svc.Create(context.Background(), "teacher-1", CreateLessonRequest{
		Date: "2024-09-02", SubjectID: "missing", ClassID: "class-1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestLessonServiceUpdateGradeAboveMaxScore(t *testing.T) {
	maxScore := 20
	repo := &mockLessonRepo{lessons: map[string]*models.Lesson{"lesson-1": {ID: "lesson-1", ClassID: "class-1", MaxScore: &maxScore}}}
	svc := newLessonService(repo, &mockSubjectFinder{}, &mockClassFinder{})

	grade := 25
	_, err := svc.Update(context.Background(), "teacher-1", "lesson-1", UpdateLessonRequest{
		Records: []RecordPatchRequest{{ID: "rec-1", Grade: &GradeValue{Value: &grade}}},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestLessonServiceUpdateGradeWithinDefaultScale(t *testing.T) {
	repo := &mockLessonRepo{lessons: map[string]*models.Lesson{"lesson-1": {ID: "lesson-1", ClassID: "class-1"}}}
	svc := newLessonService(repo, &mockSubjectFinder{}, &mockClassFinder{})

	grade := 10
	_, err := svc.Update(context.Background(), "teacher-1", "lesson-1", UpdateLessonRequest{
		Records: []RecordPatchRequest{{ID: "rec-1", Grade: &GradeValue{Value: &grade}}},
	})
	require.NoError(t, err)
	require.Len(t, repo.patches, 1)
	assert.True(t, repo.patches[0].GradeSet)
	require.NotNil(t, repo.patches[0].Grade)
	assert.Equal(t, 10, *repo.patches[0].Grade)
}

func TestLessonServiceUpdateMissingRecordMapsToIntegrity(t *testing.T) {
	repo := &mockLessonRepo{
		lessons:   map[string]*models.Lesson{"lesson-1": {ID: "lesson-1", ClassID: "class-1"}},
		updateErr: fmt.Errorf("%w: missing", repository.ErrRecordMissing),
	}
	svc := newLessonService(repo, &mockSubjectFinder{}, &mockClassFinder{})

	grade := 5
	_, err := svc.Update(context.Background(), "teacher-1", "lesson-1", UpdateLessonRequest{
		Records: []RecordPatchRequest{{ID: "missing", Grade: &GradeValue{Value: &grade}}},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErr.Code)
}

func TestLessonServiceUpdateUnknownLesson(t *testing.T) {
	svc := newLessonService(&mockLessonRepo{}, &mockSubjectFinder{}, &mockClassFinder{})

	_, err := svc.Update(context.Background(), "teacher-1", "missing", UpdateLessonRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestLessonServiceListForClassParsesRange(t *testing.T) {
	repo := &mockLessonRepo{listed: []models.LessonWithRecords{}}
	classes := &mockClassFinder{classes: map[string]*models.Class{"class-1": {ID: "class-1"}}}
	svc := newLessonService(repo, &mockSubjectFinder{}, classes)

	_, err := svc.ListForClass(context.Background(), "teacher-1", "class-1", "2024-09-01", "2024-09-30")
	require.NoError(t, err)

	_, err = svc.ListForClass(context.Background(), "teacher-1", "class-1", "not-a-date", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGradeValueUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    *int
		wantErr bool
	}{
		{name: "number", payload: `7`, want: intPtr(7)},
		{name: "numeric string", payload: `"7"`, want: intPtr(7)},
		{name: "empty string clears", payload: `""`, want: nil},
		{name: "null clears", payload: `null`, want: nil},
		{name: "garbage", payload: `"five"`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var g GradeValue
			err := json.Unmarshal([]byte(tc.payload), &g)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.want == nil {
				assert.Nil(t, g.Value)
			} else {
				require.NotNil(t, g.Value)
				assert.Equal(t, *tc.want, *g.Value)
			}
		})
	}
}

func TestUpdateLessonRequestMaxScoreTracking(t *testing.T) {
	var withNull UpdateLessonRequest
	require.NoError(t, json.Unmarshal([]byte(`{"maxScore": null}`), &withNull))
	assert.True(t, withNull.MaxScoreSet)
	assert.Nil(t, withNull.MaxScore)

	var absent UpdateLessonRequest
	require.NoError(t, json.Unmarshal([]byte(`{"topic": "Повторение"}`), &absent))
	assert.False(t, absent.MaxScoreSet)
	require.NotNil(t, absent.Topic)
}

func intPtr(v int) *int { return &v }
