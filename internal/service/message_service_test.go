package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkenges/zhurnal-api/internal/models"
	appErrors "github.com/dkenges/zhurnal-api/pkg/errors"
)

type mockMessageRepo struct {
	messages []models.Message
	sent     *models.Message
}

func (m *mockMessageRepo) ListByClass(ctx context.Context, classID, teacherID string) ([]models.Message, error) {
	return m.messages, nil
}

func (m *mockMessageRepo) Create(ctx context.Context, message *models.Message) error {
	message.ID = "msg-1"
	m.sent = message
	return nil
}

type messageMockClasses struct {
	classes map[string]*models.Class
}

func (m *messageMockClasses) FindOwned(ctx context.Context, id, teacherID string) (*models.Class, error) {
	if class, ok := m.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func TestMessageServiceSend(t *testing.T) {
	repo := &mockMessageRepo{}
	classes := &messageMockClasses{classes: map[string]*models.Class{"class-1": {ID: "class-1"}}}
	svc := NewMessageService(repo, classes, validator.New(), zap.NewNop())

	studentID := "s1"
	message, err := svc.Send(context.Background(), "teacher-1", SendMessageRequest{
		ClassroomID: "class-1", StudentID: &studentID, Text: "Не забудьте дневники",
	})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", message.SenderID)
	require.NotNil(t, message.StudentID)
	assert.Equal(t, "s1", *message.StudentID)
	require.NotNil(t, repo.sent)
	assert.Equal(t, "Не забудьте дневники", repo.sent.Text)
}

func TestMessageServiceSendUnknownClass(t *testing.T) {
	svc := NewMessageService(&mockMessageRepo{}, &messageMockClasses{}, validator.New(), zap.NewNop())

	_, err := svc.Send(context.Background(), "teacher-1", SendMessageRequest{ClassroomID: "missing", Text: "hi"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestMessageServiceListReturnsEmptySlice(t *testing.T) {
	classes := &messageMockClasses{classes: map[string]*models.Class{"class-1": {ID: "class-1"}}}
	svc := NewMessageService(&mockMessageRepo{}, classes, validator.New(), zap.NewNop())

	messages, err := svc.ListByClass(context.Background(), "teacher-1", "class-1")
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}
