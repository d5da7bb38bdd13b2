//go:generate go run go.uber.org/mock/mockgen -source=interceptor.go -destination=../mocks/mock_block_checker.go -package=mocks
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"duo-chat/domain"
	apperrors "duo-chat/errors"
)

// BlockChecker asks the identity service whether a user may still act.
// A nil error means allowed.
type BlockChecker interface {
	CheckUser(ctx context.Context, username, token string) error
}

type contextKey string

const claimKey contextKey = "claim"

// Gateway authorizes every request before it reaches a handler.
type Gateway struct {
	verifier *TokenVerifier
	checker  BlockChecker
	log      *slog.Logger
}

func NewGateway(log *slog.Logger, verifier *TokenVerifier, checker BlockChecker) *Gateway {
	return &Gateway{verifier: verifier, checker: checker, log: log}
}

// Middleware rejects unauthorized requests with the mapped error and
// passes the others downstream with the claim in their context.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, err := g.Authorize(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			apperrors.Render(w, r, g.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaim(r.Context(), claim)))
	})
}

// Authorize resolves the claim of an Authorization header value. Admin
// tokens are trusted as is, user tokens go through the block check.
func (g *Gateway) Authorize(ctx context.Context, header string) (domain.Claim, error) {
	token, ok := bearerToken(header)
	if !ok {
		g.log.Warn("Request denied", "reason", "missing bearer token")
		return nil, apperrors.Authentication("authorization token is missing")
	}

	claim, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Warn("Request denied", "reason", "invalid token")
		return nil, err
	}

	switch c := claim.(type) {
	case domain.AdminClaim:
		g.log.Debug("Request allowed", "type", c.Type(), "username", c.Username)
		return c, nil
	case domain.UserClaim:
		if err = g.checker.CheckUser(ctx, c.Username, token); err != nil {
			g.log.Warn("Request denied", "username", c.Username, "error", err)
			return nil, err
		}
		g.log.Debug("Request allowed", "type", c.Type(), "username", c.Username, "user_id", c.UserID)
		return c, nil
	default:
		return nil, apperrors.Authentication("invalid or expired token")
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func WithClaim(ctx context.Context, claim domain.Claim) context.Context {
	return context.WithValue(ctx, claimKey, claim)
}

func ClaimFromContext(ctx context.Context) (domain.Claim, bool) {
	claim, ok := ctx.Value(claimKey).(domain.Claim)
	return claim, ok
}

// UserFromContext returns the user claim attached to ctx, failing for
// admin tokens since those carry no user identity.
func UserFromContext(ctx context.Context) (domain.UserClaim, error) {
	claim, ok := ClaimFromContext(ctx)
	if !ok {
		return domain.UserClaim{}, apperrors.Authentication("authorization token is missing")
	}
	user, ok := claim.(domain.UserClaim)
	if !ok {
		return domain.UserClaim{}, apperrors.Validation("No user identity", "an admin token cannot author messages")
	}
	return user, nil
}
