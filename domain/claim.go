package domain

import "time"

type ClaimType string

const (
	ClaimTypeAdmin ClaimType = "admin"
	ClaimTypeUser  ClaimType = "user"
)

// Claim is the identity carried by a bearer token. It is closed over
// AdminClaim and UserClaim: consumers switch on the concrete type.
type Claim interface {
	Type() ClaimType
	Subject() string
	isClaim()
}

type AdminClaim struct {
	Username  string
	Email     string
	ExpiresAt time.Time
}

func (AdminClaim) Type() ClaimType   { return ClaimTypeAdmin }
func (c AdminClaim) Subject() string { return c.Username }
func (AdminClaim) isClaim()          {}

type UserClaim struct {
	UserID    int64
	Username  string
	Email     string
	ExpiresAt time.Time
}

func (UserClaim) Type() ClaimType   { return ClaimTypeUser }
func (c UserClaim) Subject() string { return c.Username }
func (UserClaim) isClaim()          {}
