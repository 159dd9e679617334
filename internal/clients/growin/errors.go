package growin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidURL is returned when the base URL or a request path cannot be built.
var ErrInvalidURL = errors.New("invalid backend URL")

// APIError is a non-2xx response, or an error object inside a 2xx chart response.
type APIError struct {
	StatusCode int
	Detail     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d for %s", e.StatusCode, e.Path)
	}
	return e.Detail
}

// DecodeError is a 2xx response whose body did not match the expected shape.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the request could succeed: transport
// failures and 5xx responses are, decode failures, 4xx and bad URLs are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidURL) || errors.Is(err, context.Canceled) {
		return false
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}

	return true
}

// newAPIError maps a non-2xx body to an APIError. FastAPI bodies carry either
// {"detail": "..."} or {"detail": [{"msg": "..."}]}.
func newAPIError(status int, path string, body []byte) *APIError {
	detail := parseDetail(body)
	if detail == "" {
		detail = http.StatusText(status)
	}
	if detail == "" {
		detail = fmt.Sprintf("HTTP %d", status)
	}
	return &APIError{StatusCode: status, Detail: detail, Path: path}
}

func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
