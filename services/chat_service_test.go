package services

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"duo-chat/domain"
	"duo-chat/domain/chat"
	apperrors "duo-chat/errors"
	"duo-chat/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_CreateChat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	svc := NewChatService(logs.GetLoggerFromLevel(slog.LevelDebug), mockRepo, 280)
	ctx := context.Background()

	t.Run("should resolve the chat of two valid users", func(t *testing.T) {
		req := require.New(t)
		cmd := chat.CreateChatCommand{
			User1: chat.UserRef{ID: 2, Username: "bob"},
			User2: chat.UserRef{ID: 1, Username: "alice"},
		}

		mockRepo.EXPECT().
			ResolveOrCreateChat(ctx, domain.Identity{ID: 2, Username: "bob"}, domain.Identity{ID: 1, Username: "alice"}).
			Return("chat-1", nil).
			Times(1)

		chatID, err := svc.CreateChat(ctx, cmd)

		req.NoError(err)
		req.Equal("chat-1", chatID)
	})

	t.Run("should fail when a user is missing", func(t *testing.T) {
		mockRepo.EXPECT().ResolveOrCreateChat(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		cases := []chat.CreateChatCommand{
			{User1: chat.UserRef{ID: 1, Username: "alice"}},
			{User1: chat.UserRef{ID: 1}, User2: chat.UserRef{ID: 2, Username: "bob"}},
			{User1: chat.UserRef{Username: "alice"}, User2: chat.UserRef{ID: 2, Username: "bob"}},
			{User1: chat.UserRef{ID: 1, Username: "alice"}, User2: chat.UserRef{ID: domain.MaxID + 1, Username: "bob"}},
			{User1: chat.UserRef{ID: -1, Username: "alice"}, User2: chat.UserRef{ID: 2, Username: "bob"}},
		}
		for _, cmd := range cases {
			req := require.New(t)
			_, err := svc.CreateChat(ctx, cmd)

			problem, ok := apperrors.AsProblem(err)
			req.True(ok)
			req.Equal(apperrors.KindValidation, problem.Kind)
			req.Equal("No user provided", problem.Title)
		}
	})

	t.Run("should fail when both users are the same", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().ResolveOrCreateChat(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.CreateChat(ctx, chat.CreateChatCommand{
			User1: chat.UserRef{ID: 1, Username: "alice"},
			User2: chat.UserRef{ID: 1, Username: "alice"},
		})

		req.ErrorIs(err, apperrors.ErrSameUser)
		req.True(apperrors.IsKind(err, apperrors.KindValidation))
	})
}

func TestChatService_MessageLength(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	svc := NewChatService(logs.GetLoggerFromLevel(slog.LevelDebug), mockRepo, 280)
	ctx := context.Background()

	t.Run("should accept 280 characters", func(t *testing.T) {
		req := require.New(t)
		content := strings.Repeat("a", 280)
		expected := domain.Message{ID: "m1", ChatID: "c1", Content: content, SenderID: 1, CreatedAt: time.Now()}

		mockRepo.EXPECT().
			AppendMessage(ctx, "c1", int64(1), content).
			Return(expected, nil).
			Times(1)

		message, err := svc.SendMessage(ctx, chat.SendMessageCommand{ChatID: "c1", SenderID: 1, Content: content})

		req.NoError(err)
		req.Equal(expected, message)
	})

	t.Run("should count characters rather than bytes", func(t *testing.T) {
		req := require.New(t)
		content := strings.Repeat("é", 280)

		mockRepo.EXPECT().
			AppendMessage(ctx, "c1", int64(1), content).
			Return(domain.Message{ID: "m2"}, nil).
			Times(1)

		_, err := svc.SendMessage(ctx, chat.SendMessageCommand{ChatID: "c1", SenderID: 1, Content: content})
		req.NoError(err)
	})

	t.Run("should reject 281 characters before any store write", func(t *testing.T) {
		req := require.New(t)
		content := strings.Repeat("a", 281)

		// Repository should NEVER be called
		mockRepo.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		mockRepo.EXPECT().EditMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.SendMessage(ctx, chat.SendMessageCommand{ChatID: "c1", SenderID: 1, Content: content})
		req.ErrorIs(err, apperrors.ErrMessageTooLong)

		_, err = svc.EditMessage(ctx, chat.EditMessageCommand{ChatID: "c1", MessageID: "m1", UserID: 1, Content: content})
		req.ErrorIs(err, apperrors.ErrMessageTooLong)

		problem, ok := apperrors.AsProblem(err)
		req.True(ok)
		req.Equal("MAXIMUM 280 CHARACTERS", problem.Title)
		req.Equal(400, problem.Status())
	})
}

func TestChatService_PassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	svc := NewChatService(logs.GetLoggerFromLevel(slog.LevelDebug), mockRepo, 280)
	ctx := context.Background()

	t.Run("should propagate repository errors on edit", func(t *testing.T) {
		req := require.New(t)
		denied := apperrors.Authentication("To update a message you must be the same user")

		mockRepo.EXPECT().
			EditMessage(ctx, "c1", "m1", "hello", int64(2)).
			Return(domain.Message{}, denied).
			Times(1)

		_, err := svc.EditMessage(ctx, chat.EditMessageCommand{ChatID: "c1", MessageID: "m1", UserID: 2, Content: "hello"})
		req.ErrorIs(err, denied)
	})

	t.Run("should delete through the repository", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().DeleteMessage(ctx, "c1", "m1", int64(1)).Return(nil).Times(1)

		req.NoError(svc.DeleteMessage(ctx, chat.DeleteMessageCommand{ChatID: "c1", MessageID: "m1", UserID: 1}))
	})

	t.Run("should list chats and messages", func(t *testing.T) {
		req := require.New(t)
		chats := map[string]domain.Chat{"c1": {ID: "c1"}}
		messages := []domain.Message{{ID: "m1"}}
		mockRepo.EXPECT().ListChatsForUser(ctx, int64(1)).Return(chats, nil).Times(1)
		mockRepo.EXPECT().ListMessages(ctx, "c1", int64(1)).Return(messages, nil).Times(1)

		gotChats, err := svc.ListChats(ctx, 1)
		req.NoError(err)
		req.Equal(chats, gotChats)

		gotMessages, err := svc.ListMessages(ctx, chat.ListMessagesCommand{ChatID: "c1", UserID: 1})
		req.NoError(err)
		req.Equal(messages, gotMessages)
	})
}
