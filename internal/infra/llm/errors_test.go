package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestClassifyHTTP_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{404, KindModelNotFound},
		{429, KindRateLimit},
		{400, KindInvalidReq},
		{500, KindServerError},
		{503, KindServerError},
		{418, KindUnknown},
	}
	for _, tc := range cases {
		e := ClassifyHTTP(tc.status, "boom", "ollama")
		if e.Kind != tc.want {
			t.Errorf("status %d: got kind %q, want %q", tc.status, e.Kind, tc.want)
		}
		if e.HTTPStatus != tc.status {
			t.Errorf("status %d: HTTPStatus not preserved, got %d", tc.status, e.HTTPStatus)
		}
	}
}

func TestClassifyHTTP_Deterministic(t *testing.T) {
	t.Parallel()

	a := ClassifyHTTP(429, "slow down", "groq")
	b := ClassifyHTTP(429, "slow down", "groq")
	if a.Kind != b.Kind || a.Message != b.Message || a.HTTPStatus != b.HTTPStatus {
		t.Errorf("same input classified differently: %+v vs %+v", a, b)
	}
}

func TestClassifyOpenAI_ContextLength(t *testing.T) {
	t.Parallel()

	e := ClassifyOpenAI(400, "This model's maximum context_length is 8192 tokens", TypeOpenAI)
	if e.Kind != KindContextLength {
		t.Errorf("got kind %q, want %q", e.Kind, KindContextLength)
	}
	// A plain 400 stays invalid_request.
	e = ClassifyOpenAI(400, "missing field 'model'", TypeOpenAI)
	if e.Kind != KindInvalidReq {
		t.Errorf("got kind %q, want %q", e.Kind, KindInvalidReq)
	}
}

func TestClassifyOpenAI_QuotaExceeded(t *testing.T) {
	t.Parallel()

	e := ClassifyOpenAI(429, "You exceeded your current quota", TypeOpenAI)
	if e.Kind != KindQuotaExceeded {
		t.Errorf("got kind %q, want %q", e.Kind, KindQuotaExceeded)
	}
	e = ClassifyOpenAI(429, "Rate limit reached", TypeOpenAI)
	if e.Kind != KindRateLimit {
		t.Errorf("got kind %q, want %q", e.Kind, KindRateLimit)
	}
}

func TestClassifyAnthropic_ContextLength(t *testing.T) {
	t.Parallel()

	e := ClassifyAnthropic(400, "prompt is too long: 250000 tokens > 200000 maximum")
	if e.Kind != KindContextLength {
		t.Errorf("got kind %q, want %q", e.Kind, KindContextLength)
	}
}

func TestClassifyGemini_Messages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg  string
		want ErrorKind
	}{
		{"API key not valid. Please pass a valid API key.", KindAuth},
		{"Resource has been exhausted (e.g. check quota).", KindRateLimit},
		{"The response was blocked due to safety settings", KindContentFilter},
		{"models/gemini-9000 is not found", KindModelNotFound},
		{"something else entirely", KindUnknown},
	}
	for _, tc := range cases {
		if e := ClassifyGemini(tc.msg); e.Kind != tc.want {
			t.Errorf("%q: got kind %q, want %q", tc.msg, e.Kind, tc.want)
		}
	}
}

func TestClassifyQwenCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code string
		want ErrorKind
	}{
		{"InvalidApiKey", KindAuth},
		{"Throttling.RateQuota", KindRateLimit},
		{"ModelNotFound", KindModelNotFound},
		{"RequestTooLong.ContextLength", KindContextLength},
		{"InternalError", KindUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyQwenCode(tc.code); got != tc.want {
			t.Errorf("code %q: got %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestClassifyTransport_TypedErrors(t *testing.T) {
	t.Parallel()

	if e := ClassifyTransport(context.DeadlineExceeded, "ollama"); e.Kind != KindTimeout {
		t.Errorf("deadline exceeded: got kind %q, want %q", e.Kind, KindTimeout)
	}
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if e := ClassifyTransport(opErr, "ollama"); e.Kind != KindConnection {
		t.Errorf("op error: got kind %q, want %q", e.Kind, KindConnection)
	}
	// Wrapped *Error passes through unchanged.
	wrapped := fmt.Errorf("request: %w", NewError("nope", "gemini", KindAuth))
	if e := ClassifyTransport(wrapped, "gemini"); e.Kind != KindAuth {
		t.Errorf("wrapped error: got kind %q, want %q", e.Kind, KindAuth)
	}
}

func TestClassifyTransport_MessageFallback(t *testing.T) {
	t.Parallel()

	if e := ClassifyTransport(errors.New("read timeout on socket"), "qwen"); e.Kind != KindTimeout {
		t.Errorf("got kind %q, want %q", e.Kind, KindTimeout)
	}
	if e := ClassifyTransport(errors.New("cannot connect to host"), "qwen"); e.Kind != KindConnection {
		t.Errorf("got kind %q, want %q", e.Kind, KindConnection)
	}
}

func TestUserMessage_NoVendorPayloadLeak(t *testing.T) {
	t.Parallel()

	e := &Error{
		Message:  `{"error":{"message":"Incorrect API key provided: sk-proj-..."}}`,
		Provider: TypeOpenAI,
		Kind:     KindAuth,
	}
	msg := e.UserMessage()
	if strings.Contains(msg, "sk-proj") {
		t.Errorf("user message leaks vendor payload: %q", msg)
	}
	if !strings.Contains(msg, TypeOpenAI) {
		t.Errorf("user message should name the provider: %q", msg)
	}
}

func TestAsError(t *testing.T) {
	t.Parallel()

	if AsError(errors.New("plain")) != nil {
		t.Error("plain error should not extract")
	}
	orig := NewError("x", "cohere", KindRateLimit)
	if got := AsError(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("wrapped *Error should extract, got %v", got)
	}
}
