// Package completion calls an OpenAI-compatible chat completion endpoint.
package completion

import (
	"context"
	"errors"
	"fmt"
)

// Completer generates a reply for a system prompt and a user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompletionError is any failure to obtain a reply. StatusCode is 0 when no
// HTTP response was received.
type CompletionError struct {
	StatusCode int
	Detail     string
	Cause      error
}

func (e *CompletionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion failed (%d): %s", e.StatusCode, e.Detail)
	}
	return "completion failed: " + e.Detail
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt could succeed.
func (e *CompletionError) Retryable() bool {
	if errors.Is(e.Cause, context.Canceled) || errors.Is(e.Cause, context.DeadlineExceeded) {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// FailureReply renders err as the assistant reply shown in place of a
// completion.
func FailureReply(err error) string {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return "LLM error: " + ce.Detail
	}
	return "LLM error: " + err.Error()
}
