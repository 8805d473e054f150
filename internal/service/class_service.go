package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
)

type classRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
	FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	DeleteCascade(ctx context.Context, id, teacherID string) error
}

type classStudentLister interface {
	ListByClass(ctx context.Context, classID, teacherID string) ([]models.Student, error)
}

type classSubjectLister interface {
	ListByClass(ctx context.Context, classID, teacherID string) ([]models.Subject, error)
}

// CreateClassRequest captures creation payload.
type CreateClassRequest struct {
	Name string `json:"name" validate:"required"`
}

// UpdateClassRequest renames a class.
type UpdateClassRequest struct {
	Name string `json:"name" validate:"required"`
}

// ClassService coordinates class operations for the acting teacher.
type ClassService struct {
	repo        classRepository
	studentRepo classStudentLister
	subjectRepo classSubjectLister
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, studentRepo classStudentLister, subjectRepo classSubjectLister, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, studentRepo: studentRepo, subjectRepo: subjectRepo, cache: cache, validator: validate, logger: logger}
}

// List returns the teacher's classes, each inflated with students and subjects.
func (s *ClassService) List(ctx context.Context, teacherID string) ([]models.ClassDetail, error) {
	classes, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	details := make([]models.ClassDetail, 0, len(classes))
	for _, class := range classes {
		detail, err := s.inflate(ctx, class, teacherID)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

// Create adds a class owned by the teacher.
func (s *ClassService) Create(ctx context.Context, teacherID string, req CreateClassRequest) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class := &models.Class{Name: req.Name, TeacherID: teacherID}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return &models.ClassDetail{Class: *class, Students: []models.Student{}, Subjects: []models.Subject{}}, nil
}

// Update renames a class owned by the teacher.
func (s *ClassService) Update(ctx context.Context, teacherID, id string, req UpdateClassRequest) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class := &models.Class{ID: id, Name: req.Name, TeacherID: teacherID}
	if err := s.repo.Update(ctx, class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}

	stored, err := s.repo.FindOwned(ctx, id, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload class")
	}
	return s.inflate(ctx, *stored, teacherID)
}

// Delete removes the class and everything under it in one atomic cascade.
func (s *ClassService) Delete(ctx context.Context, teacherID, id string) error {
	if err := s.repo.DeleteCascade(ctx, id, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.invalidateAttendance(ctx, id)
	return nil
}

func (s *ClassService) inflate(ctx context.Context, class models.Class, teacherID string) (*models.ClassDetail, error) {
	students, err := s.studentRepo.ListByClass(ctx, class.ID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class students")
	}
	subjects, err := s.subjectRepo.ListByClass(ctx, class.ID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class subjects")
	}
	if students == nil {
		students = []models.Student{}
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	return &models.ClassDetail{Class: class, Students: students, Subjects: subjects}, nil
}

func (s *ClassService) invalidateAttendance(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("attendance:summary:%s:*", classID)); err != nil {
		s.logger.Warn("failed to invalidate attendance cache", zap.String("class_id", classID), zap.Error(err))
	}
}
