package mocks

import (
	"context"
	"sync"
)

// RenderCall is one recorded Render invocation.
type RenderCall struct {
	Template string
	Data     map[string]any
}

// MockRenderer implements domain.Renderer, returning fixed bytes or a fixed error.
type MockRenderer struct {
	mu    sync.Mutex
	calls []RenderCall

	Output []byte
	Err    error
}

// NewMockRenderer creates a renderer that returns output on every call.
func NewMockRenderer(output []byte) *MockRenderer {
	return &MockRenderer{Output: output}
}

// Render implements domain.Renderer
func (m *MockRenderer) Render(ctx context.Context, templateName string, data map[string]any) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, RenderCall{Template: templateName, Data: data})
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Output, nil
}

// Calls returns the recorded invocations.
func (m *MockRenderer) Calls() []RenderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RenderCall, len(m.calls))
	copy(out, m.calls)
	return out
}
