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

type messageRepository interface {
	ListByClass(ctx context.Context, classID, teacherID string) ([]models.Message, error)
	Create(ctx context.Context, message *models.Message) error
}

type messageClassFinder interface {
	FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error)
}

// SendMessageRequest posts a note to a class or a single student.
type SendMessageRequest struct {
	ClassroomID string  `json:"classroomId" validate:"required"`
	StudentID   *string `json:"studentId,omitempty"`
	Text        string  `json:"text" validate:"required"`
}

// MessageService handles class messaging.
type MessageService struct {
	repo      messageRepository
	classRepo messageClassFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService constructs MessageService.
func NewMessageService(repo messageRepository, classRepo messageClassFinder, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{repo: repo, classRepo: classRepo, validator: validate, logger: logger}
}

// ListByClass returns the class's messages, newest first.
func (s *MessageService) ListByClass(ctx context.Context, teacherID, classID string) ([]models.Message, error) {
	if _, err := s.classRepo.FindOwned(ctx, classID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	messages, err := s.repo.ListByClass(ctx, classID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// Send posts a message from the teacher to an owned class.
func (s *MessageService) Send(ctx context.Context, teacherID string, req SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}

	if _, err := s.classRepo.FindOwned(ctx, req.ClassroomID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve class")
	}

	message := &models.Message{
		SenderID:    teacherID,
		ClassroomID: req.ClassroomID,
		StudentID:   req.StudentID,
		Text:        req.Text,
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return message, nil
}
