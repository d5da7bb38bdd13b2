// Package errors holds the failure vocabulary shared by every layer.
// A Problem carries the kind, title and detail that the HTTP boundary
// renders as a structured payload.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMessageTooLong = fmt.Errorf("message content too long")
	ErrSameUser       = fmt.Errorf("a chat needs two distinct users")
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindBlocked
	KindNotFound
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindBlocked:
		return "BlockedError"
	case KindNotFound:
		return "NotFoundError"
	case KindServiceUnavailable:
		return "ServiceUnavailableError"
	default:
		return "UnknownError"
	}
}

// Status is the HTTP status a problem of this kind is rendered with.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindBlocked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Problem struct {
	Kind   Kind
	Title  string
	Detail string
	cause  error
}

func (p *Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func (p *Problem) Unwrap() error {
	return p.cause
}

func (p *Problem) Status() int {
	return p.Kind.Status()
}

// Validation falls back to the kind name when the title is empty,
// remote services are allowed to omit it.
func Validation(title, detail string) *Problem {
	if title == "" {
		title = KindValidation.String()
	}
	return &Problem{Kind: KindValidation, Title: title, Detail: detail}
}

// MessageMaxLength is the validation failure for message content over the limit.
func MessageMaxLength(limit int) *Problem {
	return &Problem{
		Kind:   KindValidation,
		Title:  fmt.Sprintf("MAXIMUM %d CHARACTERS", limit),
		Detail: fmt.Sprintf("The content of the message is longer than %d characters", limit),
		cause:  ErrMessageTooLong,
	}
}

func Authentication(detail string) *Problem {
	return &Problem{Kind: KindAuthentication, Title: KindAuthentication.String(), Detail: detail}
}

func Blocked() *Problem {
	return &Problem{Kind: KindBlocked, Title: "User blocked", Detail: "Blocked error"}
}

func NotFound(detail string) *Problem {
	if detail == "" {
		detail = "Entity not found"
	}
	return &Problem{Kind: KindNotFound, Title: KindNotFound.String(), Detail: detail}
}

func ServiceUnavailable() *Problem {
	return &Problem{Kind: KindServiceUnavailable, Title: KindServiceUnavailable.String(), Detail: "Service unavailable"}
}

// Wrap attaches a cause to a problem so errors.Is keeps working
// through the taxonomy.
func Wrap(p *Problem, cause error) *Problem {
	p.cause = cause
	return p
}

func AsProblem(err error) (*Problem, bool) {
	var p *Problem
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	p, ok := AsProblem(err)
	return ok && p.Kind == kind
}
