// Package domain contains core concepts of the chat system.
// This file defines Identity snapshots and the canonical participant pair.
// No runtime, network, or storage logic should be added here.
package domain

// MaxID is the largest user id a node can hold: ids are stored as JSON
// numbers, exact only up to 2^53-1.
const MaxID int64 = 1<<53 - 1

// ValidID reports whether id is a positive id that survives storage.
func ValidID(id int64) bool {
	return id >= 1 && id <= MaxID
}

// Identity is a snapshot of a user taken when a chat is created.
type Identity struct {
	ID       int64
	Username string
}

// Is compares identities by id only. Use == for snapshot equality.
func (i Identity) Is(other Identity) bool {
	return i.ID == other.ID
}

// Participants is the ordered pair of a chat, First always holds the lower id.
type Participants struct {
	First  Identity
	Second Identity
}

// Canonical orders two identities by ascending id so (a, b) and (b, a)
// yield the same pair.
func Canonical(a, b Identity) Participants {
	if b.ID < a.ID {
		return Participants{First: b, Second: a}
	}
	return Participants{First: a, Second: b}
}

func (p Participants) Has(userID int64) bool {
	return p.First.ID == userID || p.Second.ID == userID
}
