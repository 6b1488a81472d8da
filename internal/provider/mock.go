package provider

import (
	"context"
	"sync"
	"time"
)

// MockProvider returns canned transcripts. It backs the "mock" provider
// type for local development and is the test double for the dispatcher.
type MockProvider struct {
	id string

	mu      sync.Mutex
	text    string
	err     error
	delay   time.Duration
	calls   int
	lastReq Request
}

// NewMockProvider creates a mock that echoes a fixed transcript
func NewMockProvider(id string) *MockProvider {
	return &MockProvider{id: id, text: "mock transcript"}
}

func (m *MockProvider) ID() string { return m.id }

// SetResponse configures the transcript and error returned by Transcribe
func (m *MockProvider) SetResponse(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.err = err
}

// SetDelay makes Transcribe block for d before answering
func (m *MockProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times Transcribe has been invoked
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request seen by Transcribe
func (m *MockProvider) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

func (m *MockProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	text, err, delay := m.text, m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Transcript{Text: text, Confidence: 0.8}, nil
}
