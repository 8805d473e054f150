package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	"github.com/dkenges/zhurnal-api/internal/repository"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
)

const (
	defaultLessonTopic = "Новая тема"
	lessonDateLayout   = "2006-01-02"
)

type lessonRepository interface {
	ListForClass(ctx context.Context, classID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error)
	ListForSubject(ctx context.Context, subjectID, teacherID string, rng models.LessonRange) ([]models.LessonWithRecords, error)
	FindOwned(ctx context.Context, id, teacherID string) (*models.Lesson, error)
	FindWithRecords(ctx context.Context, id string) (*models.LessonWithRecords, error)
	CreateWithRecords(ctx context.Context, lesson *models.Lesson) (string, bool, error)
	UpdateWithRecords(ctx context.Context, lessonID string, fields models.LessonFieldPatch, patches []models.RecordPatch) error
}

type lessonSubjectFinder interface {
	FindOwned(ctx context.Context, id, teacherID string) (*models.Subject, error)
}

type lessonClassFinder interface {
	FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error)
}

// GradeValue decodes a grade from the wire. Clients send a number, a
// numeric string, an empty string, or null; the empty string and null
// both normalize to "no grade".
type GradeValue struct {
	Value *int
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GradeValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		g.Value = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			g.Value = nil
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("grade must be a number: %w", err)
		}
		g.Value = &n
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	g.Value = &n
	return nil
}

// CreateLessonRequest creates a lesson for a subject on a calendar day.
type CreateLessonRequest struct {
	Date      string `json:"date" validate:"required"`
	SubjectID string `json:"subjectId" validate:"required"`
	ClassID   string `json:"classId" validate:"required"`
}

// RecordPatchRequest updates one lesson record, keyed by record id.
type RecordPatchRequest struct {
	ID         string      `json:"id" validate:"required"`
	Grade      *GradeValue `json:"grade,omitempty"`
	Attendance *string     `json:"attendance,omitempty"`
	Comment    *string     `json:"comment,omitempty"`
}

// UpdateLessonRequest patches lesson scalar fields and/or record rows.
// Absent fields stay untouched; MaxScore accepts null to clear.
type UpdateLessonRequest struct {
	Topic       *string              `json:"topic,omitempty"`
	Homework    *string              `json:"homework,omitempty"`
	LessonType  *string              `json:"lessonType,omitempty"`
	MaxScore    *int                 `json:"maxScore,omitempty"`
	MaxScoreSet bool                 `json:"-"`
	Records     []RecordPatchRequest `json:"records,omitempty" validate:"dive"`
}

// UnmarshalJSON tracks whether maxScore was present so that explicit
// null clears the column while absence leaves it alone.
func (r *UpdateLessonRequest) UnmarshalJSON(data []byte) error {
	type alias UpdateLessonRequest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = UpdateLessonRequest(a)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	_, r.MaxScoreSet = probe["maxScore"]
	return nil
}

// LessonService implements the lesson grid: listing lessons with their
// records, atomic lesson+records creation, and atomic patch updates.
type LessonService struct {
	repo            lessonRepository
	subjectRepo     lessonSubjectFinder
	classRepo       lessonClassFinder
	cache           *CacheService
	defaultMaxScore int
	validator       *validator.Validate
	logger          *zap.Logger
}

// NewLessonService constructs LessonService. defaultMaxScore bounds
// grades on lessons without an explicit max score.
func NewLessonService(repo lessonRepository, subjectRepo lessonSubjectFinder, classRepo lessonClassFinder, cache *CacheService, defaultMaxScore int, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxScore <= 0 {
		defaultMaxScore = 10
	}
	return &LessonService{
		repo:            repo,
		subjectRepo:     subjectRepo,
		classRepo:       classRepo,
		cache:           cache,
		defaultMaxScore: defaultMaxScore,
		validator:       validate,
		logger:          logger,
	}
}

// ListForClass returns the class's lessons within the optional date
// window, each inflated with its records, date ascending.
func (s *LessonService) ListForClass(ctx context.Context, teacherID, classID, start, end string) ([]models.LessonWithRecords, error) {
	rng, err := parseLessonRange(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := s.classRepo.FindOwned(ctx, classID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	lessons, err := s.repo.ListForClass(ctx, classID, teacherID, rng)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// ListForSubject returns the subject's lessons within the optional date
// window, scoped to the teacher through the subject's class.
func (s *LessonService) ListForSubject(ctx context.Context, teacherID, subjectID, start, end string) ([]models.LessonWithRecords, error) {
	rng, err := parseLessonRange(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := s.subjectRepo.FindOwned(ctx, subjectID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}

	lessons, err := s.repo.ListForSubject(ctx, subjectID, teacherID, rng)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// Create inserts a lesson plus one record per current roster student in
// one transaction. Creating the same (subject, date) twice resolves to
// the already-existing lesson. Returns the lesson re-fetched with its
// records and whether a new row was created.
func (s *LessonService) Create(ctx context.Context, teacherID string, req CreateLessonRequest) (*models.LessonWithRecords, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	date, err := parseLessonDate(req.Date)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}

	subject, err := s.subjectRepo.FindOwned(ctx, req.SubjectID, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}
	if subject.ClassID != req.ClassID {
		return nil, false, appErrors.Clone(appErrors.ErrIntegrity, "subject does not belong to the class")
	}

	lesson := &models.Lesson{
		Date:       date,
		Topic:      defaultLessonTopic,
		Homework:   "",
		SubjectID:  req.SubjectID,
		ClassID:    req.ClassID,
		LessonType: models.LessonTypeClasswork,
	}
	id, created, err := s.repo.CreateWithRecords(ctx, lesson)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	stored, err := s.repo.FindWithRecords(ctx, id)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload lesson")
	}
	if created {
		s.invalidateAttendance(ctx, req.ClassID)
	}
	return stored, created, nil
}

// Update applies lesson field changes and record patches atomically and
// returns the lesson re-fetched with all records attached. An empty
// request is a no-op that still returns the current state.
func (s *LessonService) Update(ctx context.Context, teacherID, lessonID string, req UpdateLessonRequest) (*models.LessonWithRecords, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}

	lesson, err := s.repo.FindOwned(ctx, lessonID, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson")
	}

	fields, err := s.buildFieldPatch(req)
	if err != nil {
		return nil, err
	}

	maxScore := s.defaultMaxScore
	switch {
	case fields.MaxScoreSet && fields.MaxScore != nil:
		maxScore = *fields.MaxScore
	case !fields.MaxScoreSet && lesson.MaxScore != nil:
		maxScore = *lesson.MaxScore
	}

	patches, err := buildRecordPatches(req.Records, maxScore)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateWithRecords(ctx, lessonID, fields, patches); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		case errors.Is(err, repository.ErrRecordMissing):
			return nil, appErrors.Clone(appErrors.ErrIntegrity, "lesson record not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
		}
	}

	stored, err := s.repo.FindWithRecords(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload lesson")
	}
	if !fields.Empty() || len(patches) > 0 {
		s.invalidateAttendance(ctx, lesson.ClassID)
	}
	return stored, nil
}

func (s *LessonService) buildFieldPatch(req UpdateLessonRequest) (models.LessonFieldPatch, error) {
	fields := models.LessonFieldPatch{
		Topic:    req.Topic,
		Homework: req.Homework,
	}
	if req.LessonType != nil {
		lt := models.LessonType(*req.LessonType)
		if !lt.Valid() {
			return fields, appErrors.Clone(appErrors.ErrValidation, "unsupported lesson type")
		}
		fields.LessonType = &lt
	}
	if req.MaxScoreSet {
		if req.MaxScore != nil && *req.MaxScore <= 0 {
			return fields, appErrors.Clone(appErrors.ErrValidation, "max score must be positive")
		}
		fields.MaxScore = req.MaxScore
		fields.MaxScoreSet = true
	}
	return fields, nil
}

func buildRecordPatches(reqs []RecordPatchRequest, maxScore int) ([]models.RecordPatch, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	patches := make([]models.RecordPatch, 0, len(reqs))
	for _, req := range reqs {
		patch := models.RecordPatch{ID: req.ID}
		if req.Grade != nil {
			if req.Grade.Value != nil && (*req.Grade.Value < 0 || *req.Grade.Value > maxScore) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade must be between 0 and %d", maxScore))
			}
			patch.Grade = req.Grade.Value
			patch.GradeSet = true
		}
		if req.Attendance != nil {
			status := models.AttendanceStatus(*req.Attendance)
			if !status.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
			}
			patch.Attendance = &status
		}
		if req.Comment != nil {
			patch.Comment = req.Comment
			patch.CommentSet = true
		}
		patches = append(patches, patch)
	}
	return patches, nil
}

func (s *LessonService) invalidateAttendance(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("attendance:summary:%s:*", classID)); err != nil {
		s.logger.Warn("failed to invalidate attendance cache", zap.String("class_id", classID), zap.Error(err))
	}
}

func parseLessonDate(raw string) (time.Time, error) {
	if t, err := time.Parse(lessonDateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseLessonRange(start, end string) (models.LessonRange, error) {
	var rng models.LessonRange
	if start != "" {
		t, err := parseLessonDate(start)
		if err != nil {
			return rng, appErrors.Clone(appErrors.ErrValidation, "start date must be formatted as YYYY-MM-DD")
		}
		rng.Start = &t
	}
	if end != "" {
		t, err := parseLessonDate(end)
		if err != nil {
			return rng, appErrors.Clone(appErrors.ErrValidation, "end date must be formatted as YYYY-MM-DD")
		}
		rng.End = &t
	}
	return rng, nil
}
