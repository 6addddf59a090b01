package ai

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// MockName is the value returned by Name. Defaults to "mock".
	MockName string

	// GenerateFunc is called when Generate is invoked.
	// If nil, echoes the last user message.
	GenerateFunc func(ctx context.Context, req *Request) (*Reply, error)

	// HealthFunc is called when Health is invoked. If nil, returns nil.
	HealthFunc func(ctx context.Context) error

	mu       sync.Mutex
	calls    int
	requests []*Request
}

// NewMock creates a mock that always replies with text.
func NewMock(text string) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, req *Request) (*Reply, error) {
			if err := validate(req); err != nil {
				return nil, err
			}
			return &Reply{Text: text, Provider: "mock"}, nil
		},
	}
}

// NewMockError creates a mock whose calls always fail with err.
func NewMockError(err error) *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, req *Request) (*Reply, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error { return err },
	}
}

// Generate calls GenerateFunc and records the request.
func (m *Mock) Generate(ctx context.Context, req *Request) (*Reply, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	last := req.Messages[len(req.Messages)-1]
	return &Reply{Text: last.Content, Provider: m.Name()}, nil
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Name returns the mock's name.
func (m *Mock) Name() string {
	if m.MockName != "" {
		return m.MockName
	}
	return "mock"
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Calls returns how many times Generate was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or nil if none.
func (m *Mock) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
