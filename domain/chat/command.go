package chat

import (
	"duo-chat/domain"
)

// UserRef is a user as sent by clients when opening a chat.
type UserRef struct {
	ID       int64  `json:"id" validate:"required,min=1,max=9007199254740991"`
	Username string `json:"username" validate:"required"`
}

func (u UserRef) Identity() domain.Identity {
	return domain.Identity{ID: u.ID, Username: u.Username}
}

type CreateChatCommand struct {
	User1 UserRef `json:"user1"`
	User2 UserRef `json:"user2"`
}

type SendMessageCommand struct {
	ChatID   string
	SenderID int64
	Content  string
}

type EditMessageCommand struct {
	ChatID    string
	MessageID string
	UserID    int64
	Content   string
}

type DeleteMessageCommand struct {
	ChatID    string
	MessageID string
	UserID    int64
}

type ListMessagesCommand struct {
	ChatID string
	UserID int64
}
