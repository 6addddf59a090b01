// Package tts provides text-to-speech adapters.
//
// Two backends are bundled: ElevenLabs (custom voice cloning) and OpenAI
// (built-in voices). All providers implement the Provider interface; fallback
// between them belongs to the resolver in pkg/provider, never to the adapters
// themselves.
//
// Example usage:
//
//	p, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("your-voice-id"),
//	)
//	defer p.Close()
//
//	audio, _ := p.Synthesize(ctx, "Hello world")
//	// audio.Data contains PCM/MP3 audio bytes
package tts

import (
	"context"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// Provider defines the text-to-speech adapter interface.
// Implementations validate input before any network call, honor the context
// deadline, and never retry internally.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*provider.AudioBuffer, error)

	// Health checks backend connectivity and credential validity.
	Health(ctx context.Context) error

	// Name returns the backend name.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Chain is a fallback chain over TTS providers.
type Chain = provider.Chain[string, *provider.AudioBuffer]

// Binding pairs a provider spec with a TTS adapter for chain construction.
func Binding(spec *provider.Spec, p Provider) provider.Binding[string, *provider.AudioBuffer] {
	return provider.Bind(spec, p.Synthesize)
}

// NewChain builds the TTS fallback chain.
func NewChain(registry *provider.Registry, bindings []provider.Binding[string, *provider.AudioBuffer], opts ...provider.ChainOption) (*Chain, error) {
	return provider.NewChain(provider.CapabilityTTS, registry, bindings, opts...)
}

// VoiceSettings controls voice characteristics for providers that support it.
// These settings affect the expressiveness and consistency of the generated
// speech.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original
	// (0.0-1.0). Higher values = closer to original voice sample.
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	// Only supported by ElevenLabs v2 models.
	Style float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}

// validate rejects empty text before any network call.
func validate(text string) error {
	if text == "" {
		return provider.Validationf("text", "must not be empty")
	}
	return nil
}
