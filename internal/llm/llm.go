// Package llm provides chat-completion clients used by the assistant.
package llm

import (
	"context"
	"errors"
)

// Roles understood by every client
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when the model produced no text
var ErrEmptyCompletion = errors.New("model returned no completion")

// Message is one turn of a conversation
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a non-streaming completion call.
// Nil Temperature or MaxTokens leave the provider default in place.
type CompletionRequest struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// Client defines the interface for completion providers.
type Client interface {
	// Complete returns the model's reply text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }
