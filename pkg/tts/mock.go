package tts

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

	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns a small fixed PCM buffer.
	SynthesizeFunc func(ctx context.Context, text string) (*provider.AudioBuffer, error)

	// HealthFunc is called when Health is invoked. If nil, returns nil.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls int
	texts []string
}

// NewMock creates a mock that returns audio as a copy of the input text bytes.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*provider.AudioBuffer, error) {
			if err := validate(text); err != nil {
				return nil, err
			}
			return &provider.AudioBuffer{
				Data:       []byte(text),
				Encoding:   provider.EncodingPCM24,
				SampleRate: 24000,
				Channels:   1,
			}, nil
		},
	}
}

// NewMockError creates a mock whose calls always fail with err.
func NewMockError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*provider.AudioBuffer, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error { return err },
	}
}

// Synthesize calls SynthesizeFunc and records the text.
func (m *Mock) Synthesize(ctx context.Context, text string) (*provider.AudioBuffer, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	if err := validate(text); err != nil {
		return nil, err
	}
	return &provider.AudioBuffer{
		Data:       []byte(text),
		Encoding:   provider.EncodingPCM24,
		SampleRate: 24000,
		Channels:   1,
	}, nil
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

// Calls returns how many times Synthesize was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastText returns the most recent synthesized text, or "" if none.
func (m *Mock) LastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
