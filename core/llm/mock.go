package llm

import (
	"context"
	"sync"
)

// =============================================================================
// Mock Provider
// =============================================================================

// MockCall records a single Generate invocation against a MockProvider.
type MockCall struct {
	Messages    []Message
	Temperature float64
}

// MockProvider is a scripted Provider for tests. Responses and errors are
// consumed in FIFO order; when the queue runs dry the Default response is
// returned.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	errors    []error
	calls     []MockCall

	// Default is returned once the queued responses are exhausted.
	Default string
}

// NewMockProvider creates a mock provider with the given queued responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{
		name:      "mock",
		responses: responses,
		Default:   "mock response",
	}
}

// QueueResponse appends a response to the queue.
func (p *MockProvider) QueueResponse(response string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, response)
}

// QueueError appends an error to the queue. Queued errors are consumed before
// queued responses.
func (p *MockProvider) QueueError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, err)
}

// Name returns the mock's identifier.
func (p *MockProvider) Name() string { return p.name }

// Generate records the call and returns the next queued error or response.
func (p *MockProvider) Generate(_ context.Context, messages []Message, temperature float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, MockCall{Messages: messages, Temperature: temperature})

	if len(p.errors) > 0 {
		err := p.errors[0]
		p.errors = p.errors[1:]
		return "", err
	}
	if len(p.responses) > 0 {
		resp := p.responses[0]
		p.responses = p.responses[1:]
		return resp, nil
	}
	return p.Default, nil
}

// Calls returns a copy of the recorded invocations.
func (p *MockProvider) Calls() []MockCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]MockCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount reports the number of Generate invocations.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
