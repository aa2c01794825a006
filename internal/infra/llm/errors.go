package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind is the shared error taxonomy every vendor failure is mapped onto.
type ErrorKind string

const (
	KindConnection    ErrorKind = "connection_error"
	KindAuth          ErrorKind = "auth_error"
	KindRateLimit     ErrorKind = "rate_limit"
	KindModelNotFound ErrorKind = "model_not_found"
	KindContextLength ErrorKind = "context_length"
	KindContentFilter ErrorKind = "content_filter"
	KindServerError   ErrorKind = "server_error"
	KindTimeout       ErrorKind = "timeout"
	KindInvalidReq    ErrorKind = "invalid_request"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindUnknown       ErrorKind = "unknown"
)

// Error is the unified LLM failure type. It is constructed by a classifier at
// the adapter boundary; no transport or vendor error type leaks past it.
// Details may carry vendor payloads for logging but is never user-facing.
type Error struct {
	Message    string         `json:"message"`
	Provider   string         `json:"provider"`
	Kind       ErrorKind      `json:"error_type"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

// UserMessage returns a human-readable string keyed by kind and provider,
// suitable for direct display. No stack traces, no vendor payloads.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindConnection:
		return fmt.Sprintf("Cannot connect to %s. Check the URL and that the service is up.", e.Provider)
	case KindAuth:
		return fmt.Sprintf("Authentication failed for %s. Check your API key.", e.Provider)
	case KindRateLimit:
		return fmt.Sprintf("Rate limit reached for %s. Try again in a moment.", e.Provider)
	case KindModelNotFound:
		return fmt.Sprintf("The requested model does not exist on %s.", e.Provider)
	case KindContextLength:
		return "The message is too long for this model. Reduce the size of your message."
	case KindContentFilter:
		return "The content was blocked by the provider's safety filter."
	case KindServerError:
		return fmt.Sprintf("Server error at %s. Try again later.", e.Provider)
	case KindTimeout:
		return fmt.Sprintf("The %s server did not respond in time.", e.Provider)
	case KindInvalidReq:
		return fmt.Sprintf("Invalid request sent to %s.", e.Provider)
	case KindQuotaExceeded:
		return fmt.Sprintf("Quota exceeded for %s. Check your subscription.", e.Provider)
	default:
		return fmt.Sprintf("Unexpected error with %s: %s", e.Provider, e.Message)
	}
}

// NewError builds an Error without an HTTP status.
func NewError(message, provider string, kind ErrorKind) *Error {
	return &Error{Message: message, Provider: provider, Kind: kind}
}

// AsError extracts an *Error from err, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// ClassifyHTTP maps a vendor HTTP status to the taxonomy. This is the uniform
// fallback classifier: 401/403 auth, 404 model not found, 429 rate limit,
// 400 invalid request, 5xx server error.
func ClassifyHTTP(status int, message, provider string) *Error {
	kind := KindUnknown
	switch {
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 404:
		kind = KindModelNotFound
	case status == 429:
		kind = KindRateLimit
	case status == 400:
		kind = KindInvalidReq
	case status >= 500:
		kind = KindServerError
	}
	return &Error{Message: message, Provider: provider, Kind: kind, HTTPStatus: status}
}

// ClassifyTransport maps a Go-side call failure (dial, TLS, context, body
// read) to the taxonomy. Typed errors are inspected first, then the message
// is substring-matched as a last resort.
func ClassifyTransport(err error, provider string) *Error {
	if e := AsError(err); e != nil {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(err.Error(), provider, KindTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(err.Error(), provider, KindTimeout)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewError(err.Error(), provider, KindConnection)
	}
	return classifyMessage(err.Error(), provider)
}

// classifyMessage is the substring fallback shared by all families.
func classifyMessage(msg, provider string) *Error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"):
		return NewError(msg, provider, KindTimeout)
	case strings.Contains(lower, "connect"):
		return NewError(msg, provider, KindConnection)
	case strings.Contains(lower, "auth"), strings.Contains(lower, "api key"), strings.Contains(lower, "unauthorized"):
		return NewError(msg, provider, KindAuth)
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many"):
		return NewError(msg, provider, KindRateLimit)
	case strings.Contains(lower, "not found"), strings.Contains(lower, "model"):
		return NewError(msg, provider, KindModelNotFound)
	}
	return NewError(msg, provider, KindUnknown)
}

// ClassifyOpenAI handles the OpenAI-compatible family. Status is inspected
// first (the SDK-less wire gives us the code directly); 400s mentioning
// context or tokens become context-length errors.
func ClassifyOpenAI(status int, message, provider string) *Error {
	lower := strings.ToLower(message)
	if status == 400 && (strings.Contains(lower, "context_length") || strings.Contains(lower, "token")) {
		return &Error{Message: message, Provider: provider, Kind: KindContextLength, HTTPStatus: status}
	}
	if status == 429 && strings.Contains(lower, "quota") {
		return &Error{Message: message, Provider: provider, Kind: KindQuotaExceeded, HTTPStatus: status}
	}
	return ClassifyHTTP(status, message, provider)
}

// ClassifyAnthropic handles the Anthropic messages API error shapes.
func ClassifyAnthropic(status int, message string) *Error {
	lower := strings.ToLower(message)
	if status == 400 && (strings.Contains(lower, "context") || strings.Contains(lower, "token")) {
		return &Error{Message: message, Provider: "anthropic", Kind: KindContextLength, HTTPStatus: status}
	}
	return ClassifyHTTP(status, message, "anthropic")
}

// ClassifyGemini classifies by message content; Gemini errors are loosely
// structured, so this stays substring-based like the rest of its family.
func ClassifyGemini(message string) *Error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "api key"), strings.Contains(lower, "invalid"):
		return NewError(message, "gemini", KindAuth)
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate"):
		return NewError(message, "gemini", KindRateLimit)
	case strings.Contains(lower, "safety"), strings.Contains(lower, "blocked"):
		return NewError(message, "gemini", KindContentFilter)
	case strings.Contains(lower, "not found"), strings.Contains(lower, "model"):
		return NewError(message, "gemini", KindModelNotFound)
	}
	return NewError(message, "gemini", KindUnknown)
}

// ClassifyQwenCode maps a DashScope error code string to the taxonomy.
func ClassifyQwenCode(code string) ErrorKind {
	lower := strings.ToLower(code)
	switch {
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "auth"):
		return KindAuth
	case strings.Contains(lower, "rate"), strings.Contains(lower, "limit"):
		return KindRateLimit
	case strings.Contains(lower, "model"), strings.Contains(lower, "not_found"):
		return KindModelNotFound
	case strings.Contains(lower, "context"), strings.Contains(lower, "length"):
		return KindContextLength
	}
	return KindUnknown
}
