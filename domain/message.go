// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Only the original sender may change a message.
package domain

import (
	"time"
)

// Message is a single entry of a chat.
type Message struct {
	ID        string
	ChatID    string
	Content   string
	SenderID  int64
	CreatedAt time.Time
	EditedAt  *time.Time
}

func (m Message) SentBy(userID int64) bool {
	return m.SenderID == userID
}
