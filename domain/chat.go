package domain

import "time"

type Chat struct {
	ID           string
	Participants Participants
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
