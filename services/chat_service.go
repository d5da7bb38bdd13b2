package services

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"duo-chat/domain"
	"duo-chat/domain/chat"
	apperrors "duo-chat/errors"
	"duo-chat/repositories"

	"github.com/go-playground/validator/v10"
)

type IChatService interface {
	CreateChat(ctx context.Context, cmd chat.CreateChatCommand) (string, error)
	ListChats(ctx context.Context, userID int64) (map[string]domain.Chat, error)
	SendMessage(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error)
	EditMessage(ctx context.Context, cmd chat.EditMessageCommand) (domain.Message, error)
	DeleteMessage(ctx context.Context, cmd chat.DeleteMessageCommand) error
	ListMessages(ctx context.Context, cmd chat.ListMessagesCommand) ([]domain.Message, error)
}

// ChatService checks request preconditions before anything reaches the
// repository.
type ChatService struct {
	repository       repositories.IChatRepository
	validate         *validator.Validate
	maxContentLength int
	log              *slog.Logger
}

func NewChatService(log *slog.Logger, repository repositories.IChatRepository, maxContentLength int) *ChatService {
	return &ChatService{
		repository:       repository,
		validate:         validator.New(),
		maxContentLength: maxContentLength,
		log:              log,
	}
}

func (s *ChatService) CreateChat(ctx context.Context, cmd chat.CreateChatCommand) (string, error) {
	if err := s.validate.Struct(cmd); err != nil {
		s.log.Debug("Rejected chat creation", "error", err)
		return "", apperrors.Validation("No user provided", "You must provide two users to create a chat")
	}
	if cmd.User1.ID == cmd.User2.ID {
		return "", apperrors.Wrap(
			apperrors.Validation("Same user", "A chat needs two different users"),
			apperrors.ErrSameUser)
	}
	return s.repository.ResolveOrCreateChat(ctx, cmd.User1.Identity(), cmd.User2.Identity())
}

func (s *ChatService) ListChats(ctx context.Context, userID int64) (map[string]domain.Chat, error) {
	return s.repository.ListChatsForUser(ctx, userID)
}

func (s *ChatService) SendMessage(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error) {
	if err := s.checkLength(cmd.Content); err != nil {
		return domain.Message{}, err
	}
	return s.repository.AppendMessage(ctx, cmd.ChatID, cmd.SenderID, cmd.Content)
}

func (s *ChatService) EditMessage(ctx context.Context, cmd chat.EditMessageCommand) (domain.Message, error) {
	if err := s.checkLength(cmd.Content); err != nil {
		return domain.Message{}, err
	}
	return s.repository.EditMessage(ctx, cmd.ChatID, cmd.MessageID, cmd.Content, cmd.UserID)
}

func (s *ChatService) DeleteMessage(ctx context.Context, cmd chat.DeleteMessageCommand) error {
	return s.repository.DeleteMessage(ctx, cmd.ChatID, cmd.MessageID, cmd.UserID)
}

func (s *ChatService) ListMessages(ctx context.Context, cmd chat.ListMessagesCommand) ([]domain.Message, error) {
	return s.repository.ListMessages(ctx, cmd.ChatID, cmd.UserID)
}

// checkLength counts characters, not bytes.
func (s *ChatService) checkLength(content string) error {
	if utf8.RuneCountInString(content) > s.maxContentLength {
		return apperrors.MessageMaxLength(s.maxContentLength)
	}
	return nil
}
