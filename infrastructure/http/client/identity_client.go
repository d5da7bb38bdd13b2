package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "duo-chat/errors"
)

// maxProblemBody bounds how much of an error body is read from the
// identity service.
const maxProblemBody = 64 * 1024

// RemoteProblem is the error body the identity service answers with.
type RemoteProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// IdentityClient asks the identity service whether a user may act.
type IdentityClient struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewIdentityClient(log *slog.Logger, baseURL string, timeout time.Duration) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// CheckUser calls GET {base}/users/{username} forwarding the caller's
// token. Transport failures and timeouts are reported as unavailable so
// the caller fails closed.
func (c *IdentityClient) CheckUser(ctx context.Context, username, token string) error {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ServiceUnavailable(), err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("Identity service unreachable", "username", username, "error", err)
		return apperrors.Wrap(apperrors.ServiceUnavailable(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	var remote RemoteProblem
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProblemBody))
		_ = json.Unmarshal(body, &remote)
	}
	c.log.Debug("Identity service answered", "username", username,
		"status", resp.StatusCode, "duration", time.Since(start))

	return MapStatus(resp.StatusCode, remote, username)
}

// MapStatus turns an identity service answer into the local error
// vocabulary. Statuses without a mapping fail closed.
func MapStatus(status int, remote RemoteProblem, username string) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusBadRequest:
		return apperrors.Validation(remote.Title, remote.Detail)
	case status == http.StatusUnauthorized:
		return apperrors.Authentication("")
	case status == http.StatusForbidden:
		return apperrors.Blocked()
	case status == http.StatusNotFound:
		return apperrors.NotFound(fmt.Sprintf("username %s not found", username))
	default:
		return apperrors.ServiceUnavailable()
	}
}
