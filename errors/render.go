package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Payload is the structured error body returned to clients.
type Payload struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// Render writes err as a Payload. Anything outside the taxonomy becomes a
// fixed 500 body; its cause is only logged.
func Render(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	payload := ToPayload(err, instance(r))
	if payload.Status == http.StatusInternalServerError {
		log.Error("unexpected error", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		log.Debug("request failed", "method", r.Method, "path", r.URL.Path,
			"status", payload.Status, "title", payload.Title)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(payload.Status)
	_ = json.NewEncoder(w).Encode(payload)
}

func ToPayload(err error, instance string) Payload {
	if p, ok := AsProblem(err); ok {
		return Payload{
			Type:     "about:blank",
			Title:    p.Title,
			Status:   p.Status(),
			Detail:   p.Detail,
			Instance: instance,
		}
	}
	return Payload{
		Type:     "about:blank",
		Title:    "Internal server error",
		Status:   http.StatusInternalServerError,
		Detail:   "An unexpected error occurred",
		Instance: instance,
	}
}

func instance(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
