package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a deterministic Client for development and tests.
type MockClient struct {
	mu       sync.Mutex
	requests []CompletionRequest

	// Reply, when set, is returned instead of the echo response
	Reply string
	// Err, when set, is returned by every call
	Err error
}

// Ensure MockClient implements Client.
var _ Client = (*MockClient)(nil)

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Complete records the request and echoes the last user message.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return fmt.Sprintf("Mock reply to: %s", req.Messages[i].Content), nil
		}
	}
	return "Mock reply", nil
}

// Requests returns the recorded requests in call order.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
