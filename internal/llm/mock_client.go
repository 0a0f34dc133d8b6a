package llm

import (
	"context"
	"encoding/json"
	"time"
)

// MockClient is a deterministic Client used by evaluator tests and by
// local development runs that should not reach a real provider. Queued
// responses are returned in order; once exhausted it repeats Default.
type MockClient struct {
	Queued  []Response
	Default Response
	calls   int
	Prompts []string
}

// NewMockClient returns a MockClient that always returns envelope as a
// successful completion, encoded as its Text field.
func NewMockClient(envelope ScoreEnvelope) *MockClient {
	raw, _ := json.Marshal(envelope)
	return &MockClient{Default: Response{Text: string(raw), Raw: string(raw)}}
}

// Complete implements Client. It ignores timeout and ctx cancellation,
// since a mock never blocks on real I/O.
func (m *MockClient) Complete(ctx context.Context, prompt string, timeout time.Duration) (Response, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.calls < len(m.Queued) {
		resp := m.Queued[m.calls]
		m.calls++
		return resp, nil
	}
	m.calls++
	return m.Default, nil
}

// CallCount returns how many times Complete has been invoked.
func (m *MockClient) CallCount() int {
	return m.calls
}
