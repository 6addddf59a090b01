package stt

import (
	"context"
	"sync"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// Mock implements Provider for testing.
// All methods can be customized via function fields.
type Mock struct {
	// MockName is the value returned by Name. Defaults to "mock".
	MockName string

	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns a fixed transcript.
	TranscribeFunc func(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error)

	// HealthFunc is called when Health is invoked. If nil, returns nil.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// NewMock creates a mock that transcribes everything to a fixed string.
func NewMock(text string) *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
			if err := validate(audio); err != nil {
				return nil, err
			}
			return &provider.Transcript{Text: text, Confidence: 0.9, Provider: "mock"}, nil
		},
	}
}

// NewMockError creates a mock whose calls always fail with err.
func NewMockError(err error) *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error { return err },
	}
}

// Transcribe calls TranscribeFunc and records the call.
func (m *Mock) Transcribe(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	return nil, provider.WrapError(m.Name(), provider.ErrNoProviders)
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

// Calls returns how many times Transcribe was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
