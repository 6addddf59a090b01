// Package stt provides speech-to-text adapters.
//
// Three backends are bundled: Vosk (offline recognition against a local
// vosk-server), Whisper (OpenAI's hosted transcription API), and Google
// Cloud Speech. All implement the Provider interface; fallback between them
// belongs to the resolver in pkg/provider, never to the adapters themselves.
//
// Example usage:
//
//	p, _ := stt.NewWhisper(stt.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	defer p.Close()
//
//	transcript, _ := p.Transcribe(ctx, &provider.AudioBuffer{
//	    Data:       pcm,
//	    Encoding:   provider.EncodingPCM16,
//	    SampleRate: 16000,
//	})
package stt

import (
	"context"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// Provider defines the speech-to-text adapter interface.
// Implementations validate input before any network call, honor the context
// deadline, and never retry internally.
type Provider interface {
	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error)

	// Health checks backend connectivity and credential validity.
	Health(ctx context.Context) error

	// Name returns the backend name.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Chain is a fallback chain over STT providers.
type Chain = provider.Chain[*provider.AudioBuffer, *provider.Transcript]

// Binding pairs a provider spec with an STT adapter for chain construction.
func Binding(spec *provider.Spec, p Provider) provider.Binding[*provider.AudioBuffer, *provider.Transcript] {
	return provider.Bind(spec, p.Transcribe)
}

// NewChain builds the STT fallback chain.
func NewChain(registry *provider.Registry, bindings []provider.Binding[*provider.AudioBuffer, *provider.Transcript], opts ...provider.ChainOption) (*Chain, error) {
	return provider.NewChain(provider.CapabilitySTT, registry, bindings, opts...)
}

// validate rejects empty audio before any network call.
func validate(audio *provider.AudioBuffer) error {
	if audio.Empty() {
		return provider.Validationf("audio", "must not be empty")
	}
	return nil
}
