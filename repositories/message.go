package repositories

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"duo-chat/domain"
	apperrors "duo-chat/errors"
	"duo-chat/storage"

	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"
)

// AppendMessage stores a message under "messages/{chatID}". The chat's
// updated_at and the message's created_at share the same instant.
func (c ChatRepository) AppendMessage(ctx context.Context, chatID string, senderID int64, content string) (domain.Message, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !chat.Participants.Has(senderID) {
		return domain.Message{}, apperrors.Authentication("You must be a participant of the chat to send a message")
	}

	at := c.now()
	if err = c.touch(ctx, chatID, at); err != nil {
		return domain.Message{}, err
	}

	node, err := structpb.NewStruct(map[string]any{
		"content":    content,
		"sender_id":  senderID,
		"created_at": formatTime(at),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("build message node: %w", err)
	}
	key, err := c.tree.Push(ctx, storage.Join(messagesPath, chatID), node)
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message to %s: %w", chatID, err)
	}
	c.log.Debug("Message appended", "chat_id", chatID, "message_id", key, "sender_id", senderID)

	return domain.Message{
		ID:        key,
		ChatID:    chatID,
		Content:   content,
		SenderID:  senderID,
		CreatedAt: at,
	}, nil
}

// EditMessage overwrites the content of a message sent by userID. The
// chat is touched before the message is read, so a rejected edit still
// refreshes updated_at.
func (c ChatRepository) EditMessage(ctx context.Context, chatID, messageID, content string, userID int64) (domain.Message, error) {
	at, err := c.enterChat(ctx, chatID, userID)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := c.ownedMessage(ctx, chatID, messageID, userID, "update")
	if err != nil {
		return domain.Message{}, err
	}

	err = c.tree.Update(ctx, messagePath(chatID, messageID), map[string]any{
		"content":   content,
		"edited_at": formatTime(at),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("edit message %s: %w", messageID, err)
	}

	message.Content = content
	message.EditedAt = lo.ToPtr(at)
	return message, nil
}

func (c ChatRepository) DeleteMessage(ctx context.Context, chatID, messageID string, userID int64) error {
	if _, err := c.enterChat(ctx, chatID, userID); err != nil {
		return err
	}
	if _, err := c.ownedMessage(ctx, chatID, messageID, userID, "delete"); err != nil {
		return err
	}
	if err := c.tree.Delete(ctx, messagePath(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	c.log.Debug("Message deleted", "chat_id", chatID, "message_id", messageID, "user_id", userID)
	return nil
}

// ListMessages returns the messages of a chat ordered by creation time.
func (c ChatRepository) ListMessages(ctx context.Context, chatID string, userID int64) ([]domain.Message, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.Participants.Has(userID) {
		return nil, apperrors.Authentication("You must be a participant of the chat to read it")
	}
	nodes, err := c.tree.Children(ctx, storage.Join(messagesPath, chatID))
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", chatID, err)
	}
	messages := make([]domain.Message, 0, len(nodes))
	for key, node := range nodes {
		message, err := toMessage(chatID, key, node)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	slices.SortFunc(messages, func(a, b domain.Message) int {
		if order := a.CreatedAt.Compare(b.CreatedAt); order != 0 {
			return order
		}
		return strings.Compare(a.ID, b.ID)
	})
	return messages, nil
}

// enterChat checks that userID takes part in the chat and refreshes its
// updated_at, returning the instant used.
func (c ChatRepository) enterChat(ctx context.Context, chatID string, userID int64) (time.Time, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return time.Time{}, err
	}
	if !chat.Participants.Has(userID) {
		return time.Time{}, apperrors.Authentication("You must be a participant of the chat")
	}
	at := c.now()
	if err = c.touch(ctx, chatID, at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (c ChatRepository) ownedMessage(ctx context.Context, chatID, messageID string, userID int64, verb string) (domain.Message, error) {
	node, err := c.tree.Get(ctx, messagePath(chatID, messageID))
	if errors.Is(err, storage.ErrNodeNotFound) {
		return domain.Message{}, apperrors.NotFound("Message not found")
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("get message %s: %w", messageID, err)
	}
	message, err := toMessage(chatID, messageID, node)
	if err != nil {
		return domain.Message{}, err
	}
	if message.SenderID == 0 {
		return domain.Message{}, apperrors.NotFound("Message not found")
	}
	if !message.SentBy(userID) {
		return domain.Message{}, apperrors.Authentication(
			fmt.Sprintf("To %s a message you must be the same user", verb))
	}
	return message, nil
}

func messagePath(chatID, messageID string) string {
	return storage.Join(messagesPath, chatID, messageID)
}

func toMessage(chatID, id string, node *structpb.Struct) (domain.Message, error) {
	fields := node.GetFields()
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	message := domain.Message{
		ID:        id,
		ChatID:    chatID,
		Content:   fields["content"].GetStringValue(),
		SenderID:  int64(fields["sender_id"].GetNumberValue()),
		CreatedAt: createdAt,
	}
	if _, ok := fields["edited_at"]; ok {
		editedAt, err := parseTime(fields["edited_at"])
		if err != nil {
			return domain.Message{}, fmt.Errorf("message %s: %w", id, err)
		}
		message.EditedAt = &editedAt
	}
	return message, nil
}
