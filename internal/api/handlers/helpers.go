// Handler helper functions: JSON envelopes, error mapping, SSE plumbing.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/yblis/nova/internal/domain/history"
	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/llm"
)

// writeError writes a JSON error envelope with the given status code.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		http.Error(w, `{"error":"failed to encode error response"}`, http.StatusInternalServerError)
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// decodeBody decodes the request body into dst, writing a 400 on failure.
// Returns false when the caller should stop.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses. Upstream LLM
// failures keep their kind in the envelope so the UI can react per class.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		writeError(w, http.StatusNotFound, "provider not found")
	case errors.Is(err, provider.ErrUnknownType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrNoneConfigured):
		writeError(w, http.StatusConflict, "no provider configured")
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		if lerr := llm.AsError(err); lerr != nil {
			writeJSON(w, llmStatus(lerr.Kind), map[string]string{
				"error":      lerr.UserMessage(),
				"error_kind": string(lerr.Kind),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
	}
}

// llmStatus maps an upstream error kind to the status we answer with.
func llmStatus(kind llm.ErrorKind) int {
	switch kind {
	case llm.KindAuth:
		return http.StatusUnauthorized
	case llm.KindRateLimit, llm.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case llm.KindModelNotFound:
		return http.StatusNotFound
	case llm.KindInvalidReq, llm.KindContextLength, llm.KindContentFilter:
		return http.StatusBadRequest
	case llm.KindTimeout:
		return http.StatusGatewayTimeout
	case llm.KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// sseStream prepares w for server-sent events. Returns a send function that
// writes one `data:` frame per call and flushes, or false when the
// ResponseWriter cannot stream.
func sseStream(w http.ResponseWriter) (func(v any) error, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, true
}
