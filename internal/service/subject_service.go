package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
)

type subjectRepository interface {
	ListByClass(ctx context.Context, classID, teacherID string) ([]models.Subject, error)
	FindOwned(ctx context.Context, id, teacherID string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	UpdateOwned(ctx context.Context, subject *models.Subject, teacherID string) error
	DeleteOwned(ctx context.Context, id, teacherID string) error
}

type subjectClassFinder interface {
	FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error)
}

// CreateSubjectRequest captures fields for creating a subject.
type CreateSubjectRequest struct {
	Name       string  `json:"name" validate:"required"`
	ClassID    string  `json:"classId" validate:"required"`
	LessonDays []int64 `json:"lessonDays" validate:"omitempty,dive,min=1,max=7"`
}

// UpdateSubjectRequest modifies subject fields.
type UpdateSubjectRequest struct {
	Name       string  `json:"name" validate:"required"`
	LessonDays []int64 `json:"lessonDays" validate:"omitempty,dive,min=1,max=7"`
}

// SubjectService manages subjects taught in the teacher's classes.
type SubjectService struct {
	repo      subjectRepository
	classRepo subjectClassFinder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, classRepo subjectClassFinder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, classRepo: classRepo, cache: cache, validator: validate, logger: logger}
}

// ListByClass returns the subjects of an owned class.
func (s *SubjectService) ListByClass(ctx context.Context, teacherID, classID string) ([]models.Subject, error) {
	if _, err := s.classRepo.FindOwned(ctx, classID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	subjects, err := s.repo.ListByClass(ctx, classID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	return subjects, nil
}

// Create adds a subject to a class owned by the teacher.
func (s *SubjectService) Create(ctx context.Context, teacherID string, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	if _, err := s.classRepo.FindOwned(ctx, req.ClassID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	subject := &models.Subject{
		Name:       req.Name,
		ClassID:    req.ClassID,
		LessonDays: normalizeLessonDays(req.LessonDays),
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update modifies a subject owned by the teacher.
func (s *SubjectService) Update(ctx context.Context, teacherID, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject := &models.Subject{ID: id, Name: req.Name, LessonDays: normalizeLessonDays(req.LessonDays)}
	if err := s.repo.UpdateOwned(ctx, subject, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}

	stored, err := s.repo.FindOwned(ctx, id, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload subject")
	}
	return stored, nil
}

// Delete removes a subject together with its lessons and records, then
// drops the class's cached attendance summaries since they counted the
// deleted lessons.
func (s *SubjectService) Delete(ctx context.Context, teacherID, id string) error {
	subject, err := s.repo.FindOwned(ctx, id, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}

	if err := s.repo.DeleteOwned(ctx, id, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}

	s.invalidateAttendance(ctx, subject.ClassID)
	return nil
}

func (s *SubjectService) invalidateAttendance(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("attendance:summary:%s:*", classID)); err != nil {
		s.logger.Warn("failed to invalidate attendance cache", zap.String("class_id", classID), zap.Error(err))
	}
}

// normalizeLessonDays deduplicates and sorts ISO weekday numbers.
func normalizeLessonDays(days []int64) []int64 {
	if len(days) == 0 {
		return []int64{}
	}
	seen := make(map[int64]struct{}, len(days))
	out := make([]int64, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
