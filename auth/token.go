package auth

import (
	"fmt"
	"time"

	"duo-chat/domain"
	apperrors "duo-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims is the wire form of a domain.Claim. The "type" tag selects
// which variant the remaining fields describe.
type tokenClaims struct {
	Type     domain.ClaimType `json:"type"`
	UserID   *int64           `json:"userId,omitempty"`
	Username string           `json:"username"`
	Email    string           `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier signs and verifies HS256 bearer tokens carrying an
// identity claim.
type TokenVerifier struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

func NewTokenVerifier(secret string, expiresIn time.Duration) *TokenVerifier {
	return &TokenVerifier{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// WithClock replaces the time source used to stamp and check expiry.
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	v.now = now
	return v
}

// Sign issues a token for the claim. The claim's own expiry is ignored,
// tokens always live for the configured duration.
func (v *TokenVerifier) Sign(claim domain.Claim) (string, error) {
	claims, err := fromClaim(claim)
	if err != nil {
		return "", err
	}
	claims.ExpiresAt = jwt.NewNumericDate(v.now().Add(v.expiresIn))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify checks signature, algorithm and expiry and returns the claim.
// Every failure is reported as the same authentication error.
func (v *TokenVerifier) Verify(tokenString string) (domain.Claim, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return nil, apperrors.Wrap(apperrors.Authentication("invalid or expired token"), err)
	}
	claim, err := toClaim(claims)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Authentication("invalid or expired token"), err)
	}
	return claim, nil
}

// Decode reads the claim without checking the signature. Only use it for
// diagnostics, never to authorize anything.
func (v *TokenVerifier) Decode(tokenString string) (domain.Claim, bool) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, false
	}
	claim, err := toClaim(claims)
	if err != nil {
		return nil, false
	}
	return claim, true
}

func fromClaim(claim domain.Claim) (*tokenClaims, error) {
	switch c := claim.(type) {
	case domain.AdminClaim:
		return &tokenClaims{Type: domain.ClaimTypeAdmin, Username: c.Username, Email: c.Email}, nil
	case domain.UserClaim:
		userID := c.UserID
		return &tokenClaims{Type: domain.ClaimTypeUser, UserID: &userID, Username: c.Username, Email: c.Email}, nil
	default:
		return nil, fmt.Errorf("unsupported claim %T", claim)
	}
}

func toClaim(claims *tokenClaims) (domain.Claim, error) {
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	switch claims.Type {
	case domain.ClaimTypeAdmin:
		return domain.AdminClaim{Username: claims.Username, Email: claims.Email, ExpiresAt: expiresAt}, nil
	case domain.ClaimTypeUser:
		if claims.UserID == nil {
			return nil, fmt.Errorf("user claim without userId")
		}
		if !domain.ValidID(*claims.UserID) {
			return nil, fmt.Errorf("userId %d out of range", *claims.UserID)
		}
		return domain.UserClaim{UserID: *claims.UserID, Username: claims.Username, Email: claims.Email, ExpiresAt: expiresAt}, nil
	default:
		return nil, fmt.Errorf("unknown claim type %q", claims.Type)
	}
}
