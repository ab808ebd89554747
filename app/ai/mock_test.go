package ai

import (
	"context"
	"sync"
)

type MockGenerator struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	Prompts []string
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	return m.Reply, m.Err
}

func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
