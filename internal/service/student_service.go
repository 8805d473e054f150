package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
)

type studentRepository interface {
	ListByClass(ctx context.Context, classID, teacherID string) ([]models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateOwned(ctx context.Context, student *models.Student, teacherID string) error
	DeleteOwned(ctx context.Context, id, teacherID string) error
}

type studentClassFinder interface {
	FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error)
}

// CreateStudentRequest holds payload for enrolling a student.
type CreateStudentRequest struct {
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	ClassroomID string `json:"classroomId" validate:"required"`
}

// UpdateStudentRequest renames a student.
type UpdateStudentRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// StudentService manages roster membership within the teacher's classes.
type StudentService struct {
	repo      studentRepository
	classRepo studentClassFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, classRepo studentClassFinder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, classRepo: classRepo, validator: validate, logger: logger}
}

// ListByClass returns the roster of an owned class ordered by name.
func (s *StudentService) ListByClass(ctx context.Context, teacherID, classID string) ([]models.Student, error) {
	if _, err := s.classRepo.FindOwned(ctx, classID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	students, err := s.repo.ListByClass(ctx, classID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Create enrolls a student into a class owned by the teacher.
func (s *StudentService) Create(ctx context.Context, teacherID string, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	if _, err := s.classRepo.FindOwned(ctx, req.ClassroomID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	student := &models.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		ClassroomID: req.ClassroomID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update renames a student in one of the teacher's classes.
func (s *StudentService) Update(ctx context.Context, teacherID, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{ID: id, FirstName: req.FirstName, LastName: req.LastName}
	if err := s.repo.UpdateOwned(ctx, student, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student from the roster. Their lesson records stay
// behind as frozen history; attendance aggregation skips them.
func (s *StudentService) Delete(ctx context.Context, teacherID, id string) error {
	if err := s.repo.DeleteOwned(ctx, id, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}
