package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"duo-chat/auth"
	"duo-chat/domain"
	"duo-chat/domain/chat"
	apperrors "duo-chat/errors"
	"duo-chat/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/lo"
)

const maxBodyBytes = 1 << 20

type ChatServer struct {
	chatService    services.IChatService
	gateway        *auth.Gateway
	allowedOrigins []string
	log            *slog.Logger
}

// NewChatServer builds the HTTP surface. allowedOrigins feeds CORS, "*"
// allows any origin.
func NewChatServer(log *slog.Logger, chatService services.IChatService, gateway *auth.Gateway, allowedOrigins []string) *ChatServer {
	return &ChatServer{chatService: chatService, gateway: gateway, allowedOrigins: allowedOrigins, log: log}
}

type identityResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type createChatResponse struct {
	ID    string           `json:"id"`
	User1 identityResponse `json:"user1"`
	User2 identityResponse `json:"user2"`
}

type participantsResponse struct {
	First  identityResponse `json:"first"`
	Second identityResponse `json:"second"`
}

type chatResponse struct {
	ID           string               `json:"id"`
	Participants participantsResponse `json:"participants"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type messageResponse struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Content   string     `json:"content"`
	SenderID  int64      `json:"sender_id"`
	Timestamp time.Time  `json:"timestamp"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

type contentRequest struct {
	Content string `json:"content"`
}

// Routes builds the router. Everything under /chats goes through the
// authorization gateway, /healthz does not.
func (s *ChatServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/chats", func(r chi.Router) {
		r.Use(s.gateway.Middleware)
		r.Post("/", s.createChat)
		r.Get("/", s.listChats)
		r.Post("/{chatId}", s.sendMessage)
		r.Get("/{chatId}/messages", s.listMessages)
		r.Patch("/{chatId}/messages/{messageId}", s.editMessage)
		r.Delete("/{chatId}/messages/{messageId}", s.deleteMessage)
	})
	return r
}

func (s *ChatServer) createChat(w http.ResponseWriter, r *http.Request) {
	var cmd chat.CreateChatCommand
	if err := s.decode(w, r, &cmd); err != nil {
		s.fail(w, r, err)
		return
	}
	chatID, err := s.chatService.CreateChat(r.Context(), cmd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createChatResponse{
		ID:    chatID,
		User1: toIdentityResponse(cmd.User1.Identity()),
		User2: toIdentityResponse(cmd.User2.Identity()),
	})
}

// listChats answers with the caller's chats. Admins name the user with
// the user_id query parameter.
func (s *ChatServer) listChats(w http.ResponseWriter, r *http.Request) {
	userID, err := s.chatOwner(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chats, err := s.chatService.ListChats(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.MapValues(chats, func(c domain.Chat, _ string) chatResponse {
		return toChatResponse(c)
	}))
}

func (s *ChatServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body contentRequest
	if err = s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	message, err := s.chatService.SendMessage(r.Context(), chat.SendMessageCommand{
		ChatID:   chi.URLParam(r, "chatId"),
		SenderID: user.UserID,
		Content:  body.Content,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func (s *ChatServer) listMessages(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	messages, err := s.chatService.ListMessages(r.Context(), chat.ListMessagesCommand{
		ChatID: chi.URLParam(r, "chatId"),
		UserID: user.UserID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m)
	}))
}

func (s *ChatServer) editMessage(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body contentRequest
	if err = s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	message, err := s.chatService.EditMessage(r.Context(), chat.EditMessageCommand{
		ChatID:    chi.URLParam(r, "chatId"),
		MessageID: chi.URLParam(r, "messageId"),
		UserID:    user.UserID,
		Content:   body.Content,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(message))
}

func (s *ChatServer) deleteMessage(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.chatService.DeleteMessage(r.Context(), chat.DeleteMessageCommand{
		ChatID:    chi.URLParam(r, "chatId"),
		MessageID: chi.URLParam(r, "messageId"),
		UserID:    user.UserID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatServer) chatOwner(r *http.Request) (int64, error) {
	claim, ok := auth.ClaimFromContext(r.Context())
	if !ok {
		return 0, apperrors.Authentication("authorization token is missing")
	}
	switch c := claim.(type) {
	case domain.UserClaim:
		return c.UserID, nil
	case domain.AdminClaim:
		userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		if err != nil || userID == 0 {
			return 0, apperrors.Validation("No user provided", "An admin must name the user with the user_id parameter")
		}
		return userID, nil
	default:
		return 0, apperrors.Authentication("invalid or expired token")
	}
}

func (s *ChatServer) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Wrap(apperrors.Validation("Body too large", "The request body exceeds the allowed size"), err)
		}
		return apperrors.Wrap(apperrors.Validation("Invalid body", "The request body is not valid JSON"), err)
	}
	return nil
}

func (s *ChatServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.Render(w, r, s.log, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func toIdentityResponse(identity domain.Identity) identityResponse {
	return identityResponse{ID: identity.ID, Username: identity.Username}
}

func toChatResponse(c domain.Chat) chatResponse {
	return chatResponse{
		ID: c.ID,
		Participants: participantsResponse{
			First:  toIdentityResponse(c.Participants.First),
			Second: toIdentityResponse(c.Participants.Second),
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Content:   m.Content,
		SenderID:  m.SenderID,
		Timestamp: m.CreatedAt,
		EditedAt:  m.EditedAt,
	}
}
