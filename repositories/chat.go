//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"duo-chat/domain"
	apperrors "duo-chat/errors"
	"duo-chat/storage"

	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	chatsPath    = "chats"
	messagesPath = "messages"

	firstParticipantID  = "participants/first/id"
	secondParticipantID = "participants/second/id"
)

// Indexes are the tree indexes the chat repository queries by.
var Indexes = []storage.Index{
	{Path: chatsPath, Child: firstParticipantID},
	{Path: chatsPath, Child: secondParticipantID},
}

type IChatRepository interface {
	ResolveOrCreateChat(ctx context.Context, user1, user2 domain.Identity) (string, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	ListChatsForUser(ctx context.Context, userID int64) (map[string]domain.Chat, error)
	AppendMessage(ctx context.Context, chatID string, senderID int64, content string) (domain.Message, error)
	EditMessage(ctx context.Context, chatID, messageID, content string, userID int64) (domain.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID string, userID int64) error
	ListMessages(ctx context.Context, chatID string, userID int64) ([]domain.Message, error)
}

// ChatRepository implements the chat protocol on top of a storage.Tree.
// Multi-step mutations (chat timestamp, then message) are not atomic: if
// the second write fails the chat keeps its new updated_at.
type ChatRepository struct {
	tree storage.Tree
	log  *slog.Logger
	now  func() time.Time
}

func NewChatRepository(tree storage.Tree, log *slog.Logger) ChatRepository {
	return ChatRepository{tree: tree, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, mostly for tests.
func (c ChatRepository) WithClock(now func() time.Time) ChatRepository {
	c.now = now
	return c
}

// ResolveOrCreateChat returns the chat of the canonical pair, creating it
// on first use. Matching compares full identity snapshots: once a
// username changes the old chat no longer matches and a new one is made.
func (c ChatRepository) ResolveOrCreateChat(ctx context.Context, user1, user2 domain.Identity) (string, error) {
	if !domain.ValidID(user1.ID) || !domain.ValidID(user2.ID) {
		return "", apperrors.Validation("Invalid user id",
			fmt.Sprintf("User ids must be between 1 and %d", domain.MaxID))
	}
	canonical := domain.Canonical(user1, user2)

	chats, err := c.ListChatsForUser(ctx, user1.ID)
	if err != nil {
		return "", err
	}
	keys := lo.Keys(chats)
	slices.Sort(keys)
	for _, key := range keys {
		if chats[key].Participants == canonical {
			return key, nil
		}
	}

	createdAt := c.now()
	node, err := structpb.NewStruct(map[string]any{
		"participants": fromParticipants(canonical),
		"created_at":   formatTime(createdAt),
		"updated_at":   formatTime(createdAt),
	})
	if err != nil {
		return "", fmt.Errorf("build chat node: %w", err)
	}
	key, err := c.tree.Push(ctx, chatsPath, node)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	c.log.Info("Chat created", "chat_id", key,
		"first", canonical.First.ID, "second", canonical.Second.ID)
	return key, nil
}

func (c ChatRepository) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	node, err := c.tree.Get(ctx, storage.Join(chatsPath, chatID))
	if errors.Is(err, storage.ErrNodeNotFound) {
		return domain.Chat{}, apperrors.NotFound("Chat not found")
	}
	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	return toChat(chatID, node)
}

// ListChatsForUser merges the chats where userID sits in the first slot
// with those where it sits in the second. A user holds one slot per chat
// so the two sets never overlap.
func (c ChatRepository) ListChatsForUser(ctx context.Context, userID int64) (map[string]domain.Chat, error) {
	asFirst, err := c.chatsWhere(ctx, firstParticipantID, userID)
	if err != nil {
		return nil, err
	}
	asSecond, err := c.chatsWhere(ctx, secondParticipantID, userID)
	if err != nil {
		return nil, err
	}
	return lo.Assign(asFirst, asSecond), nil
}

func (c ChatRepository) chatsWhere(ctx context.Context, child string, userID int64) (map[string]domain.Chat, error) {
	nodes, err := c.tree.EqualTo(ctx, chatsPath, child, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats by %s: %w", child, err)
	}
	chats := make(map[string]domain.Chat, len(nodes))
	for key, node := range nodes {
		chat, err := toChat(key, node)
		if err != nil {
			return nil, err
		}
		chats[key] = chat
	}
	return chats, nil
}

// touch refreshes the chat's updated_at.
func (c ChatRepository) touch(ctx context.Context, chatID string, at time.Time) error {
	err := c.tree.Update(ctx, storage.Join(chatsPath, chatID), map[string]any{
		"updated_at": formatTime(at),
	})
	if errors.Is(err, storage.ErrNodeNotFound) {
		return apperrors.NotFound("Chat not found")
	}
	if err != nil {
		return fmt.Errorf("touch chat %s: %w", chatID, err)
	}
	return nil
}

func fromParticipants(p domain.Participants) map[string]any {
	return map[string]any{
		"first":  map[string]any{"id": p.First.ID, "username": p.First.Username},
		"second": map[string]any{"id": p.Second.ID, "username": p.Second.Username},
	}
}

func toIdentity(node *structpb.Struct) domain.Identity {
	return domain.Identity{
		ID:       int64(node.GetFields()["id"].GetNumberValue()),
		Username: node.GetFields()["username"].GetStringValue(),
	}
}

func toChat(id string, node *structpb.Struct) (domain.Chat, error) {
	fields := node.GetFields()
	participants := fields["participants"].GetStructValue()
	createdAt, err := parseTime(fields["created_at"])
	if err != nil {
		return domain.Chat{}, fmt.Errorf("chat %s: %w", id, err)
	}
	updatedAt, err := parseTime(fields["updated_at"])
	if err != nil {
		return domain.Chat{}, fmt.Errorf("chat %s: %w", id, err)
	}
	return domain.Chat{
		ID: id,
		Participants: domain.Participants{
			First:  toIdentity(participants.GetFields()["first"].GetStructValue()),
			Second: toIdentity(participants.GetFields()["second"].GetStructValue()),
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts a missing value as the zero time.
func parseTime(value *structpb.Value) (time.Time, error) {
	raw := value.GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}
