package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"duo-chat/auth"
	"duo-chat/domain"
	apperrors "duo-chat/errors"
	"duo-chat/infrastructure/http/client"
	"duo-chat/repositories"
	"duo-chat/services"
	"duo-chat/storage"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t        *testing.T
	handler  http.Handler
	verifier *auth.TokenVerifier
}

// newHarness wires the whole stack on an in-memory tree. The fake
// identity service blocks "mallory" and knows everybody else.
func newHarness(t *testing.T) *harness {
	return newHarnessWithOrigins(t, []string{"*"})
}

func newHarnessWithOrigins(t *testing.T, allowedOrigins []string) *harness {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/mallory") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(identity.Close)

	verifier := auth.NewTokenVerifier("server_test_secret_key_2026", time.Hour)
	gateway := auth.NewGateway(log, verifier, client.NewIdentityClient(log, identity.URL, time.Second))
	repository := repositories.NewChatRepository(storage.NewMemoryTree(), log)
	service := services.NewChatService(log, repository, 280)

	return &harness{t: t, handler: NewChatServer(log, service, gateway, allowedOrigins).Routes(), verifier: verifier}
}

func (h *harness) token(claim domain.Claim) string {
	token, err := h.verifier.Sign(claim)
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestChatServer_Scenario(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	alice := h.token(domain.UserClaim{UserID: 1, Username: "alice"})
	bob := h.token(domain.UserClaim{UserID: 2, Username: "bob"})
	carol := h.token(domain.UserClaim{UserID: 3, Username: "carol"})
	admin := h.token(domain.AdminClaim{Username: "root"})

	pair := map[string]any{
		"user1": map[string]any{"id": 1, "username": "alice"},
		"user2": map[string]any{"id": 2, "username": "bob"},
	}
	reversed := map[string]any{"user1": pair["user2"], "user2": pair["user1"]}

	w := h.do(http.MethodPost, "/chats", alice, pair)
	req.Equal(http.StatusCreated, w.Code)
	created := decodeBody[createChatResponse](t, w)
	req.NotEmpty(created.ID)
	req.Equal("alice", created.User1.Username)

	w = h.do(http.MethodPost, "/chats", bob, reversed)
	req.Equal(http.StatusCreated, w.Code)
	req.Equal(created.ID, decodeBody[createChatResponse](t, w).ID)

	w = h.do(http.MethodPost, "/chats/"+created.ID, alice, map[string]string{"content": "hello bob"})
	req.Equal(http.StatusCreated, w.Code)
	hello := decodeBody[messageResponse](t, w)
	req.Equal(int64(1), hello.SenderID)

	w = h.do(http.MethodPost, "/chats/"+created.ID, bob, map[string]string{"content": "hi alice"})
	req.Equal(http.StatusCreated, w.Code)

	w = h.do(http.MethodPost, "/chats/"+created.ID, carol, map[string]string{"content": "let me in"})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPatch, "/chats/"+created.ID+"/messages/"+hello.ID, bob, map[string]string{"content": "hijacked"})
	req.Equal(http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPatch, "/chats/"+created.ID+"/messages/"+hello.ID, alice, map[string]string{"content": "hello Bob"})
	req.Equal(http.StatusOK, w.Code)
	edited := decodeBody[messageResponse](t, w)
	req.Equal("hello Bob", edited.Content)
	req.NotNil(edited.EditedAt)

	w = h.do(http.MethodGet, "/chats/"+created.ID+"/messages", bob, nil)
	req.Equal(http.StatusOK, w.Code)
	messages := decodeBody[[]messageResponse](t, w)
	req.Len(messages, 2)
	req.Equal("hello Bob", messages[0].Content)
	req.Equal("hi alice", messages[1].Content)

	w = h.do(http.MethodDelete, "/chats/"+created.ID+"/messages/"+hello.ID, alice, nil)
	req.Equal(http.StatusNoContent, w.Code)

	w = h.do(http.MethodGet, "/chats", bob, nil)
	req.Equal(http.StatusOK, w.Code)
	chats := decodeBody[map[string]chatResponse](t, w)
	req.Len(chats, 1)
	req.Contains(chats, created.ID)

	w = h.do(http.MethodGet, "/chats?user_id=1", admin, nil)
	req.Equal(http.StatusOK, w.Code)
	req.Len(decodeBody[map[string]chatResponse](t, w), 1)
}

func TestChatServer_Errors(t *testing.T) {
	h := newHarness(t)
	alice := h.token(domain.UserClaim{UserID: 1, Username: "alice"})
	admin := h.token(domain.AdminClaim{Username: "root"})
	mallory := h.token(domain.UserClaim{UserID: 66, Username: "mallory"})

	t.Run("should answer health without a token", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodGet, "/healthz", "", nil)
		req.Equal(http.StatusOK, w.Code)
	})

	t.Run("should reject a missing token", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodGet, "/chats", "", nil)
		req.Equal(http.StatusUnauthorized, w.Code)
		payload := decodeBody[apperrors.Payload](t, w)
		req.Equal("about:blank", payload.Type)
		req.Equal("http://example.com/chats", payload.Instance)
	})

	t.Run("should reject a blocked user", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodGet, "/chats", mallory, nil)
		req.Equal(http.StatusForbidden, w.Code)
		req.Equal("User blocked", decodeBody[apperrors.Payload](t, w).Title)
	})

	t.Run("should reject a chat with a missing user", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodPost, "/chats", alice, map[string]any{
			"user1": map[string]any{"id": 1, "username": "alice"},
		})
		req.Equal(http.StatusBadRequest, w.Code)
		req.Equal("No user provided", decodeBody[apperrors.Payload](t, w).Title)
	})

	t.Run("should reject invalid json", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodPost, "/chats", strings.NewReader("{"))
		r.Header.Set("Authorization", "Bearer "+alice)
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, r)
		req.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("should refuse messages authored by an admin", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodPost, "/chats/any", admin, map[string]string{"content": "hi"})
		req.Equal(http.StatusBadRequest, w.Code)
		req.Equal("No user identity", decodeBody[apperrors.Payload](t, w).Title)
	})

	t.Run("should require user_id for admin listings", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodGet, "/chats", admin, nil)
		req.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("should reject 281 characters", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodPost, "/chats/any", alice, map[string]string{"content": strings.Repeat("x", 281)})
		req.Equal(http.StatusBadRequest, w.Code)
		req.Equal("MAXIMUM 280 CHARACTERS", decodeBody[apperrors.Payload](t, w).Title)
	})

	t.Run("should answer 404 for an unknown chat", func(t *testing.T) {
		req := require.New(t)
		w := h.do(http.MethodPost, "/chats/unknown", alice, map[string]string{"content": "hi"})
		req.Equal(http.StatusNotFound, w.Code)
	})
}

func TestChatServer_Cors(t *testing.T) {
	h := newHarnessWithOrigins(t, []string{"https://app.example.com"})

	preflight := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodOptions, "/chats", nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, r)
		return w
	}

	t.Run("should allow a configured origin without credentials", func(t *testing.T) {
		req := require.New(t)
		w := preflight("https://app.example.com")
		req.Equal("https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		req.Empty(w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("should not echo an unknown origin", func(t *testing.T) {
		req := require.New(t)
		w := preflight("https://evil.example.org")
		req.Empty(w.Header().Get("Access-Control-Allow-Origin"))
		req.Empty(w.Header().Get("Access-Control-Allow-Credentials"))
	})
}
