package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantTitle  string
		wantDetail string
	}{
		{"validation", Validation("No user provided", "You must provide two users"), 400, "No user provided", "You must provide two users"},
		{"message too long", MessageMaxLength(280), 400, "MAXIMUM 280 CHARACTERS", "The content of the message is longer than 280 characters"},
		{"authentication", Authentication(""), 401, "AuthenticationError", ""},
		{"blocked", Blocked(), 403, "User blocked", "Blocked error"},
		{"not found default", NotFound(""), 404, "NotFoundError", "Entity not found"},
		{"service unavailable", ServiceUnavailable(), 503, "ServiceUnavailableError", "Service unavailable"},
		{"wrapped problem", fmt.Errorf("edit: %w", NotFound("Message not found")), 404, "NotFoundError", "Message not found"},
		{"uncategorized", fmt.Errorf("badger: disk full"), 500, "Internal server error", "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r := httptest.NewRequest(http.MethodPost, "http://chat.local/chats/abc?x=1", nil)
			w := httptest.NewRecorder()

			Render(w, r, log, tt.err)

			req.Equal(tt.wantStatus, w.Code)
			req.Equal("application/json", w.Header().Get("Content-Type"))
			var payload Payload
			req.NoError(json.Unmarshal(w.Body.Bytes(), &payload))
			req.Equal("about:blank", payload.Type)
			req.Equal(tt.wantStatus, payload.Status)
			req.Equal(tt.wantTitle, payload.Title)
			req.Equal(tt.wantDetail, payload.Detail)
			req.Equal("http://chat.local/chats/abc?x=1", payload.Instance)
		})
	}
}

func TestMessageMaxLength_IsValidation(t *testing.T) {
	req := require.New(t)
	err := fmt.Errorf("send: %w", MessageMaxLength(280))

	req.True(IsKind(err, KindValidation))
	req.ErrorIs(err, ErrMessageTooLong)
}

func TestValidation_DefaultTitle(t *testing.T) {
	req := require.New(t)
	p := Validation("", "bad input")
	req.Equal("ValidationError", p.Title)
	req.Equal("ValidationError: bad input", p.Error())
}
